package daemon

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eyetrax/gazed/pkg/calibration"
	"github.com/eyetrax/gazed/pkg/events"
	"github.com/eyetrax/gazed/pkg/sampler"
)

// mockConf implements the subset of Config behavior the session needs.
type mockConf struct {
	tick   int
	settle int
	step   int
	cron   string
}

func (m *mockConf) TickIntervalMS() int          { return m.tick }
func (m *mockConf) SettleWindowMS() int          { return m.settle }
func (m *mockConf) StepWindowMS() int            { return m.step }
func (m *mockConf) CameraIndex() int             { return 0 }
func (m *mockConf) FaceCascadePath() string      { return "" }
func (m *mockConf) EyeCascadePath() string       { return "" }
func (m *mockConf) AllowNonRootAccess() bool     { return false }
func (m *mockConf) RecalibrationCron() string    { return m.cron }
func (m *mockConf) SetTickIntervalMS(i int)      { m.tick = i }
func (m *mockConf) SetSettleWindowMS(i int)      { m.settle = i }
func (m *mockConf) SetStepWindowMS(i int)        { m.step = i }
func (m *mockConf) SetCameraIndex(int)           {}
func (m *mockConf) SetAllowNonRootAccess(bool)   {}
func (m *mockConf) SetRecalibrationCron(s string) { m.cron = s }
func (m *mockConf) LogrusFields() logrus.Fields  { return logrus.Fields{} }
func (m *mockConf) Load() error                  { return nil }
func (m *mockConf) Save() error                  { return nil }

// fakeClock drives timeNow so window timing is deterministic.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) inject() {
	timeNow = func() time.Time { return f.now }
}

func (f *fakeClock) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func resetSession(t *testing.T, settle, step int) *fakeClock {
	t.Helper()

	conf = &mockConf{tick: 50, settle: settle, step: step}
	sessionStatePath = "" // disable persistence
	sessionState = &calibration.State{Phase: calibration.PhaseIdle}
	stepBuffer = nil
	lastSample = calibration.Point{X: 0.5, Y: 0.5}
	lastSampleAt = time.Time{}
	currentPoint = nil
	scheduler = nil
	samplerConn = nil
	setSamplerHealth(nil)
	sseHub = events.NewHub()

	clock := &fakeClock{now: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)}
	clock.inject()
	t.Cleanup(func() { timeNow = time.Now })

	return clock
}

// tickOnce advances the clock by one tick interval and applies the
// given sample.
func tickOnce(clock *fakeClock, x, y float64, ok bool) bool {
	clock.advance(50 * time.Millisecond)
	s := sampler.Sample{X: x, Y: y, At: clock.now}
	return applySessionWithinLoop(s, ok)
}

// TestSessionFullFlow drives a complete nine-step calibration with a
// known affine distortion (measured = 0.8*target + 0.1) and checks that
// the fitted mapping inverts it.
func TestSessionFullFlow(t *testing.T) {
	clock := resetSession(t, 1000, 5000)

	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}
	if sessionState.Phase != calibration.PhaseCalibrating {
		t.Fatalf("expected calibrating phase, got %s", sessionState.Phase)
	}

	// Each step spans 100 ticks at 50ms. Collection happens at ticks
	// where elapsed is in [1000ms, 5000ms), i.e. ticks 20..99: 80
	// samples. The step closes on tick 100.
	for step := 0; step < len(targets); step++ {
		tgt := targets[sessionState.StepIndex]
		mx := 0.8*tgt.X + 0.1
		my := 0.8*tgt.Y + 0.1

		for k := 1; k <= 99; k++ {
			tickOnce(clock, mx, my, true)
		}
		if got := len(stepBuffer); got != 80 {
			t.Fatalf("step %d: buffer has %d samples before close, want 80", step+1, got)
		}

		tickOnce(clock, mx, my, true)

		if got := len(sessionState.Steps); got != step+1 {
			t.Fatalf("expected %d closed steps, got %d", step+1, got)
		}
		closed := sessionState.Steps[step]
		if math.Abs(closed.Measured.X-mx) > 1e-12 || math.Abs(closed.Measured.Y-my) > 1e-12 {
			t.Fatalf("step %d measured = (%v, %v), want (%v, %v)", step+1, closed.Measured.X, closed.Measured.Y, mx, my)
		}
		if len(stepBuffer) != 0 {
			t.Fatalf("step buffer not cleared after close")
		}
	}

	if sessionState.Phase != calibration.PhaseRunning {
		t.Fatalf("expected running phase after final step, got %s", sessionState.Phase)
	}
	m := sessionState.Mapping
	if m == nil {
		t.Fatalf("mapping not set after calibration")
	}

	// Inverting measured = 0.8*target + 0.1 gives scale 1.25, offset -0.125.
	if math.Abs(m.X.Scale-1.25) > 1e-9 || math.Abs(m.X.Offset+0.125) > 1e-9 {
		t.Errorf("X mapping = %+v, want scale 1.25 offset -0.125", m.X)
	}
	if math.Abs(m.Y.Scale-1.25) > 1e-9 || math.Abs(m.Y.Offset+0.125) > 1e-9 {
		t.Errorf("Y mapping = %+v, want scale 1.25 offset -0.125", m.Y)
	}

	// The transform is applied in the same tick the fit completes. The
	// last fed sample was 0.8*0.9+0.1 = 0.82, which maps back to 0.9.
	if currentPoint == nil {
		t.Fatalf("current point not set after entering run phase")
	}
	if math.Abs(currentPoint.X-0.9) > 1e-9 || math.Abs(currentPoint.Y-0.9) > 1e-9 {
		t.Errorf("current point = %+v, want (0.9, 0.9)", currentPoint)
	}
}

// TestSessionEmptyBufferFallback verifies a step whose collection
// window saw no valid samples closes with the last raw sample instead
// of a garbage mean.
func TestSessionEmptyBufferFallback(t *testing.T) {
	clock := resetSession(t, 1000, 5000)

	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}

	// One good sample during the settle window, then the sampler dies.
	tickOnce(clock, 0.33, 0.66, true)
	for k := 2; k <= 100; k++ {
		tickOnce(clock, 0, 0, false)
	}

	if got := len(sessionState.Steps); got != 1 {
		t.Fatalf("expected 1 closed step, got %d", got)
	}
	closed := sessionState.Steps[0]
	if closed.Measured.X != 0.33 || closed.Measured.Y != 0.66 {
		t.Errorf("fallback measured = %+v, want (0.33, 0.66)", closed.Measured)
	}
}

// TestSessionTickMalformedSample verifies a NaN sample from the sampler
// does not overwrite the retained last sample.
func TestSessionTickMalformedSample(t *testing.T) {
	resetSession(t, 1000, 5000)
	timeNow = time.Now

	lastSample = calibration.Point{X: 0.4, Y: 0.6}
	pollGaze = func() (sampler.Sample, error) {
		return sampler.Sample{X: math.NaN(), Y: 0.5, At: time.Now()}, nil
	}
	t.Cleanup(func() { pollGaze = defaultPollGaze })

	sessionTick()

	if lastSample.X != 0.4 || lastSample.Y != 0.6 {
		t.Errorf("last sample overwritten by malformed sample: %+v", lastSample)
	}
}

func TestSessionPauseResume(t *testing.T) {
	clock := resetSession(t, 1000, 5000)

	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}

	// Advance into the collection window, then pause.
	for k := 1; k <= 40; k++ {
		tickOnce(clock, 0.2, 0.2, true)
	}
	if len(stepBuffer) == 0 {
		t.Fatalf("expected samples collected before pause")
	}
	if err := pauseSession(); err != nil {
		t.Fatalf("pauseSession failed: %v", err)
	}

	// Paused ticks do no session work and must not close the step, no
	// matter how much wall time passes.
	clock.advance(time.Minute)
	if active := tickOnce(clock, 0.2, 0.2, true); active {
		t.Fatalf("paused session should not be active")
	}
	if len(sessionState.Steps) != 0 {
		t.Fatalf("paused session closed a step")
	}

	if err := resumeSession(); err != nil {
		t.Fatalf("resumeSession failed: %v", err)
	}
	if len(stepBuffer) != 0 {
		t.Fatalf("resume should discard the partial step buffer")
	}
	if !sessionState.StepStartedAt.Equal(clock.now) {
		t.Fatalf("resume should restart the current step from now")
	}

	// The restarted step closes a full step window after resume.
	for k := 1; k <= 100; k++ {
		tickOnce(clock, 0.2, 0.2, true)
	}
	if got := len(sessionState.Steps); got != 1 {
		t.Fatalf("expected 1 closed step after resume, got %d", got)
	}
}

func TestSessionCancel(t *testing.T) {
	resetSession(t, 1000, 5000)

	if err := cancelSession(); err == nil {
		t.Fatalf("cancel without session should fail")
	}

	// Cancel with no prior mapping goes idle.
	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}
	if err := cancelSession(); err != nil {
		t.Fatalf("cancelSession failed: %v", err)
	}
	if sessionState.Phase != calibration.PhaseIdle {
		t.Fatalf("expected idle after cancel, got %s", sessionState.Phase)
	}

	// Cancel with a prior mapping returns to the run phase with it.
	prior := &calibration.Mapping{
		X: calibration.AxisMap{Scale: 1.1, Offset: -0.05},
		Y: calibration.AxisMap{Scale: 0.9, Offset: 0.05},
	}
	sessionState.Mapping = prior
	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}
	if err := cancelSession(); err != nil {
		t.Fatalf("cancelSession failed: %v", err)
	}
	if sessionState.Phase != calibration.PhaseRunning {
		t.Fatalf("expected running after cancel with mapping, got %s", sessionState.Phase)
	}
	if sessionState.Mapping != prior {
		t.Fatalf("cancel should keep the prior mapping")
	}
}

func TestSessionStartWhileCalibrating(t *testing.T) {
	resetSession(t, 1000, 5000)

	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}
	if err := startSession(); err != ErrCalibrationInProgress {
		t.Fatalf("expected ErrCalibrationInProgress, got %v", err)
	}
}

// TestSessionStartUnhealthySampler verifies a start against a failing
// sampler lands in the error phase with the reason surfaced in status,
// and that a later start with a recovered sampler clears it.
func TestSessionStartUnhealthySampler(t *testing.T) {
	resetSession(t, 1000, 5000)

	prior := &calibration.Mapping{
		X: calibration.AxisMap{Scale: 1.1, Offset: -0.05},
		Y: calibration.AxisMap{Scale: 0.9, Offset: 0.05},
	}
	sessionState.Mapping = prior

	setSamplerHealth(errors.New("camera gone"))

	if err := startSession(); !errors.Is(err, ErrSamplerUnavailable) {
		t.Fatalf("expected ErrSamplerUnavailable, got %v", err)
	}
	if sessionState.Phase != calibration.PhaseError {
		t.Fatalf("expected error phase, got %s", sessionState.Phase)
	}
	if sessionState.Mapping != prior {
		t.Fatalf("error phase should keep the prior mapping")
	}

	status := getSessionStatus()
	if status.Phase != calibration.PhaseError {
		t.Fatalf("status phase = %s, want error", status.Phase)
	}
	if status.Message == "" {
		t.Fatalf("status should carry the sampler failure message")
	}

	// Ticks in the error phase do no session work.
	if active := applySessionWithinLoop(sampler.Sample{X: 0.5, Y: 0.5, At: timeNow()}, true); active {
		t.Fatalf("error-phase session should not be active")
	}

	// Once the sampler recovers, starting succeeds and clears the error.
	setSamplerHealth(nil)
	if err := startSession(); err != nil {
		t.Fatalf("startSession after recovery failed: %v", err)
	}
	if sessionState.Phase != calibration.PhaseCalibrating {
		t.Fatalf("expected calibrating phase after recovery, got %s", sessionState.Phase)
	}
	if got := getSessionStatus().Message; got != "" {
		t.Fatalf("status message not cleared after recovery: %q", got)
	}
}

// TestSessionErrorSurfaced verifies a startup failure recorded via
// setSessionError shows up in status and the daemon loop keeps ticking
// without panicking on the missing sampler.
func TestSessionErrorSurfaced(t *testing.T) {
	resetSession(t, 1000, 5000)
	timeNow = time.Now

	setSessionError("failed to open camera 0: no such device")

	status := getSessionStatus()
	if status.Phase != calibration.PhaseError {
		t.Fatalf("status phase = %s, want error", status.Phase)
	}
	if status.Message != "failed to open camera 0: no such device" {
		t.Fatalf("status message = %q", status.Message)
	}

	// samplerConn is nil; the default poll reports no sample and the
	// tick completes as a data no-op.
	if _, err := defaultPollGaze(); !errors.Is(err, sampler.ErrNoSample) {
		t.Fatalf("expected ErrNoSample without a sampler, got %v", err)
	}
	if active := sessionTick(); active {
		t.Fatalf("error-phase tick should not be active")
	}
}

func TestSessionStatus(t *testing.T) {
	clock := resetSession(t, 1000, 5000)

	status := getSessionStatus()
	if status.Phase != calibration.PhaseIdle {
		t.Fatalf("expected idle status, got %s", status.Phase)
	}
	if status.CanPause || status.CanCancel {
		t.Fatalf("idle session should not be pausable or cancelable")
	}

	if err := startSession(); err != nil {
		t.Fatalf("startSession failed: %v", err)
	}
	for k := 1; k <= 30; k++ {
		tickOnce(clock, 0.25, 0.75, true)
	}

	status = getSessionStatus()
	if status.StepIndex != 1 || status.TotalSteps != 9 {
		t.Errorf("step = %d/%d, want 1/9", status.StepIndex, status.TotalSteps)
	}
	if status.Target == nil || status.Target.X != 0.1 || status.Target.Y != 0.1 {
		t.Errorf("target = %+v, want (0.1, 0.1)", status.Target)
	}
	// 30 ticks in: 1500ms elapsed, 3500ms remain, collecting.
	if math.Abs(status.SecondsRemaining-3.5) > 1e-9 {
		t.Errorf("secondsRemaining = %v, want 3.5", status.SecondsRemaining)
	}
	if !status.Collecting {
		t.Errorf("expected collecting during collection window")
	}
	if !status.CanPause || !status.CanCancel {
		t.Errorf("calibrating session should be pausable and cancelable")
	}
	if status.Raw.X != 0.25 || status.Raw.Y != 0.75 {
		t.Errorf("raw = %+v, want (0.25, 0.75)", status.Raw)
	}
}
