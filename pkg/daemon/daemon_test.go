package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestRunMalformedConfig verifies a startup failure is returned to the
// caller instead of killing the process, so deferred cleanup in the
// caller still runs.
func TestRunMalformedConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "gazed.json")
	if err := os.WriteFile(cfgPath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	err := Run(Options{
		ConfigPath: cfgPath,
		SocketPath: filepath.Join(dir, "gazed.sock"),
		StatePath:  filepath.Join(dir, "state.json"),
	})
	if err == nil {
		t.Fatalf("expected error for malformed config")
	}
	if !strings.Contains(err.Error(), "failed to parse config") {
		t.Fatalf("unexpected error: %v", err)
	}
}
