// Package sampler is the gaze sampler boundary. The daemon only ever
// sees the Sampler interface; the camera implementation (gocv) and the
// synthetic implementation are interchangeable behind it, which is what
// keeps the calibration core testable without a camera.
package sampler

import (
	"math"
	"time"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrNoSample indicates the sampler has not produced an estimate yet
	// (e.g. camera still warming up).
	ErrNoSample = pkgerrors.New("no gaze sample available yet")
	// ErrStale indicates the cached estimate is too old to be useful,
	// usually because the capture pipeline stopped delivering frames.
	ErrStale = pkgerrors.New("gaze sample is stale")
)

// staleAfter is how old a cached sample may be before PollGaze reports
// ErrStale instead of returning it.
const staleAfter = time.Second

// Sample is a normalized gaze estimate. X and Y are in [0,1].
type Sample struct {
	X  float64   `json:"x"`
	Y  float64   `json:"y"`
	At time.Time `json:"at"`
}

// Valid reports whether both axes carry a usable normalized value.
// Malformed payloads (NaN or out-of-range axes) are treated the same as
// a failed poll by callers.
func (s Sample) Valid() bool {
	if math.IsNaN(s.X) || math.IsNaN(s.Y) {
		return false
	}
	return s.X >= 0 && s.X <= 1 && s.Y >= 0 && s.Y <= 1
}

// Sampler yields normalized gaze estimates. PollGaze must be safe to
// call at 20Hz or faster and must never block on the capture pipeline;
// implementations cache the latest estimate and return it immediately.
type Sampler interface {
	PollGaze() (Sample, error)
	Close() error
}
