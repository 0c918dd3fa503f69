package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eyetrax/gazed/pkg/calibration"
	"github.com/eyetrax/gazed/pkg/events"
	"github.com/eyetrax/gazed/pkg/sampler"
)

// Sampler accessor and clock as function vars for the test seam;
// defaults go through samplerConn and the wall clock.
var (
	pollGaze = defaultPollGaze
	timeNow  = time.Now
)

// defaultPollGaze reads the configured sampler. The daemon keeps
// running without one (e.g. the camera failed to open at startup), in
// which case every poll reports no sample.
func defaultPollGaze() (sampler.Sample, error) {
	if samplerConn == nil {
		return sampler.Sample{}, sampler.ErrNoSample
	}
	return samplerConn.PollGaze()
}

var (
	sessionMu        = &sync.Mutex{}
	sessionState     = &calibration.State{Phase: calibration.PhaseIdle}
	sessionStatePath = ""

	targets = calibration.Targets()

	// Runtime-only state, never persisted. lastSample starts at screen
	// center to match the sampler's no-face fallback; see DESIGN.md for
	// the center-bias caveat.
	stepBuffer   []calibration.Point
	lastSample   = calibration.Point{X: 0.5, Y: 0.5}
	lastSampleAt time.Time
	currentPoint *calibration.Point
)

var ErrCalibrationInProgress = &sessionError{"calibration already in progress"}
var ErrSessionNotCalibrating = &sessionError{"no calibration in progress"}
var ErrSamplerUnavailable = &sessionError{"gaze sampler is unavailable"}

type sessionError struct{ msg string }

func (e *sessionError) Error() string { return e.msg }

func initSessionState(path string) {
	sessionStatePath = path
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return
		}
		logrus.WithError(err).Warn("failed to read session state")
		return
	}
	var st calibration.State
	if err := json.Unmarshal(b, &st); err != nil {
		logrus.WithError(err).Warn("failed to unmarshal session state")
		return
	}
	// A session interrupted mid-calibration cannot be resumed: the step
	// sample buffer is gone and a partial mean would corrupt the fit.
	// Keep a completed mapping; reset anything else to idle.
	if st.Phase == calibration.PhaseCalibrating {
		logrus.Warn("daemon restarted mid-calibration, discarding partial session")
		st = calibration.State{Phase: calibration.PhaseIdle, Mapping: st.Mapping}
		if st.Mapping != nil {
			st.Phase = calibration.PhaseRunning
		}
	}
	sessionState = &st
}

func persistSessionState() {
	if sessionStatePath == "" {
		return
	}
	b, err := json.MarshalIndent(sessionState, "", "  ")
	if err != nil {
		logrus.WithError(err).Error("marshal session state")
		return
	}
	if err := os.WriteFile(sessionStatePath, b, 0644); err != nil {
		logrus.WithError(err).Error("write session state")
	}
}

// startSession begins a new calibration session using the configured
// windows. Starting while a fitted mapping is live begins a fresh
// session; the old mapping stays in place until the new fit replaces it.
func startSession() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionState.Phase == calibration.PhaseCalibrating {
		return ErrCalibrationInProgress
	}

	// A session cannot start against a sampler that is failing its
	// polls; surface the reason in the error phase and stay there until
	// a later start finds the sampler healthy again.
	if err := samplerError(); err != nil {
		setSessionErrorLocked(fmt.Sprintf("cannot start calibration: %v", err))
		persistSessionState()
		return ErrSamplerUnavailable
	}

	settle := conf.SettleWindowMS()
	step := conf.StepWindowMS()
	if settle < 0 {
		settle = 0
	}
	if step <= settle {
		step = settle + 1000
	}

	now := timeNow()
	sessionState = &calibration.State{
		Phase:          calibration.PhaseCalibrating,
		StartedAt:      now,
		StepStartedAt:  now,
		SettleWindowMS: settle,
		StepWindowMS:   step,
		Mapping:        sessionState.Mapping,
	}
	stepBuffer = stepBuffer[:0]
	currentPoint = nil

	sseHub.Publish(events.SessionAction, events.SessionActionEvent{
		Action:  string(calibration.ActionStart),
		Message: fmt.Sprintf("Start calibration: %d targets, %dms per step", len(targets), step),
		Ts:      now.Unix(),
	})

	persistSessionState()

	return nil
}

// setSessionError moves the session into the error phase and records
// the reason, which getSessionStatus surfaces as the status message.
// The error phase is sticky until a calibration start succeeds.
func setSessionError(msg string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	setSessionErrorLocked(msg)
	persistSessionState()
}

// setSessionErrorLocked is setSessionError for callers already holding
// sessionMu. A previously fitted mapping survives the error phase.
func setSessionErrorLocked(msg string) {
	prev := sessionState.Phase
	sessionState = &calibration.State{
		Phase:     calibration.PhaseError,
		Mapping:   sessionState.Mapping,
		LastError: msg,
	}
	stepBuffer = stepBuffer[:0]

	logrus.Error(msg)

	sseHub.Publish(events.SessionPhase, events.SessionPhaseEvent{
		From:    string(prev),
		To:      string(calibration.PhaseError),
		Message: msg,
		Ts:      timeNow().Unix(),
	})
}

// applySessionWithinLoop advances the session state machine using one
// polled sample. ok is false when the poll failed or returned a
// malformed payload; such ticks are data no-ops, retaining prior values
// while timing still advances. Returns true if the session did
// work this tick (calibrating or running, not paused).
func applySessionWithinLoop(s sampler.Sample, ok bool) bool {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if ok {
		lastSample = calibration.Point{X: s.X, Y: s.Y}
		lastSampleAt = s.At
	}

	st := sessionState
	prevPhase := st.Phase
	if st.Phase == calibration.PhaseIdle || st.Phase == calibration.PhaseError || st.Paused {
		return false
	}

	now := timeNow()
	stepClosed := false

	if st.Phase == calibration.PhaseCalibrating {
		elapsed := now.Sub(st.StepStartedAt)
		stepWindow := time.Duration(st.StepWindowMS) * time.Millisecond
		settleWindow := time.Duration(st.SettleWindowMS) * time.Millisecond

		switch {
		case elapsed >= stepWindow:
			// Close the step. An empty buffer (sampler failed every tick
			// of the collection window) falls back to the retained last
			// sample instead of producing a NaN mean.
			measured := lastSample
			if len(stepBuffer) > 0 {
				measured = calibration.Mean(stepBuffer)
			}
			closed := calibration.Step{Target: targets[st.StepIndex], Measured: measured}
			st.Steps = append(st.Steps, closed)
			stepBuffer = stepBuffer[:0]
			stepClosed = true

			sseHub.Publish(events.CalibrationStep, events.CalibrationStepEvent{
				Step:      st.StepIndex + 1,
				Total:     len(targets),
				TargetX:   closed.Target.X,
				TargetY:   closed.Target.Y,
				MeasuredX: closed.Measured.X,
				MeasuredY: closed.Measured.Y,
				Ts:        now.Unix(),
			})

			logrus.WithFields(logrus.Fields{
				"step":     st.StepIndex + 1,
				"total":    len(targets),
				"target":   fmt.Sprintf("(%.2f, %.2f)", closed.Target.X, closed.Target.Y),
				"measured": fmt.Sprintf("(%.3f, %.3f)", closed.Measured.X, closed.Measured.Y),
			}).Debug("calibration step closed")

			st.StepIndex++
			st.StepStartedAt = now

			if st.StepIndex >= len(targets) {
				m := calibration.Fit(st.Steps)
				st.Mapping = &m
				st.Phase = calibration.PhaseRunning
				logrus.WithFields(logrus.Fields{
					"scaleX":  m.X.Scale,
					"offsetX": m.X.Offset,
					"scaleY":  m.Y.Scale,
					"offsetY": m.Y.Offset,
				}).Info("calibration complete, entering run phase")
			}
		case elapsed >= settleWindow && ok:
			stepBuffer = append(stepBuffer, lastSample)
		}
	}

	if st.Phase == calibration.PhaseRunning && st.Mapping != nil {
		p := st.Mapping.Apply(lastSample)
		currentPoint = &p
	}

	publishFrameLocked(now)

	if stepClosed || st.Phase != prevPhase {
		persistSessionState()
	}

	if st.Phase != prevPhase {
		sseHub.Publish(events.SessionPhase, events.SessionPhaseEvent{
			From:    string(prevPhase),
			To:      string(st.Phase),
			Message: fmt.Sprintf("Calibration completed in %s", formatDuration(now.Sub(st.StartedAt))),
			Ts:      now.Unix(),
		})
	}

	return true
}

// publishFrameLocked emits the per-tick render input for display
// clients. Caller must hold sessionMu.
func publishFrameLocked(now time.Time) {
	st := sessionState
	frame := events.GazeFrameEvent{
		Phase: string(st.Phase),
		X:     lastSample.X,
		Y:     lastSample.Y,
		Ts:    now.Unix(),
	}

	if st.Phase == calibration.PhaseCalibrating && st.StepIndex < len(targets) {
		elapsed := now.Sub(st.StepStartedAt)
		stepWindow := time.Duration(st.StepWindowMS) * time.Millisecond
		settleWindow := time.Duration(st.SettleWindowMS) * time.Millisecond
		remaining := (stepWindow - elapsed).Seconds()
		if remaining < 0 {
			remaining = 0
		}
		frame.Step = st.StepIndex + 1
		frame.Total = len(targets)
		frame.TargetX = targets[st.StepIndex].X
		frame.TargetY = targets[st.StepIndex].Y
		frame.SecondsRemaining = remaining
		frame.Collecting = elapsed >= settleWindow
	}

	if st.Phase == calibration.PhaseRunning && currentPoint != nil {
		frame.X = currentPoint.X
		frame.Y = currentPoint.Y
	}

	sseHub.Publish(events.GazeFrame, frame)
}

func pauseSession() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionState.Phase != calibration.PhaseCalibrating {
		return ErrSessionNotCalibrating
	}
	if !sessionState.Paused {
		sessionState.Paused = true
		sessionState.PauseStartedAt = timeNow()

		sseHub.Publish(events.SessionAction, events.SessionActionEvent{
			Action:  string(calibration.ActionPause),
			Message: fmt.Sprintf("Calibration paused at step %d", sessionState.StepIndex+1),
			Ts:      timeNow().Unix(),
		})

		persistSessionState()
	}

	return nil
}

// resumeSession unpauses and restarts the current step from scratch.
// Samples collected across a pause gap are not comparable, so the step
// buffer is discarded and the step origin reset.
func resumeSession() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionState.Phase != calibration.PhaseCalibrating {
		return ErrSessionNotCalibrating
	}
	if !sessionState.Paused {
		return nil
	}

	stepBuffer = stepBuffer[:0]
	sessionState.StepStartedAt = timeNow()
	sessionState.Paused = false
	sessionState.PauseStartedAt = time.Time{}

	sseHub.Publish(events.SessionAction, events.SessionActionEvent{
		Action:  string(calibration.ActionResume),
		Message: fmt.Sprintf("Calibration resumed, restarting step %d", sessionState.StepIndex+1),
		Ts:      timeNow().Unix(),
	})

	persistSessionState()
	return nil
}

// cancelSession aborts an in-progress calibration. If a previously
// fitted mapping exists the session returns to the run phase with it;
// otherwise the daemon goes idle.
func cancelSession() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionState.Phase != calibration.PhaseCalibrating {
		return ErrSessionNotCalibrating
	}

	st := sessionState
	phase := calibration.PhaseIdle
	if st.Mapping != nil {
		phase = calibration.PhaseRunning
	}

	sseHub.Publish(events.SessionAction, events.SessionActionEvent{
		Action:  string(calibration.ActionCancel),
		Message: fmt.Sprintf("Calibration canceled at step %d", st.StepIndex+1),
		Ts:      timeNow().Unix(),
	})

	sessionState = &calibration.State{Phase: phase, Mapping: st.Mapping}
	stepBuffer = stepBuffer[:0]
	persistSessionState()
	return nil
}

func getSessionStatus() *calibration.Status {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	st := sessionState

	status := &calibration.Status{
		Phase:      st.Phase,
		TotalSteps: len(targets),
		Raw:        lastSample,
		Point:      currentPoint,
		StartedAt:  st.StartedAt,
		Paused:     st.Paused,
		CanPause:   st.Phase == calibration.PhaseCalibrating && !st.Paused,
		CanCancel:  st.Phase == calibration.PhaseCalibrating,
		Message:    st.LastError,
	}

	if st.Phase == calibration.PhaseCalibrating && st.StepIndex < len(targets) {
		tgt := targets[st.StepIndex]
		status.StepIndex = st.StepIndex + 1
		status.Target = &tgt

		elapsed := timeNow().Sub(st.StepStartedAt)
		stepWindow := time.Duration(st.StepWindowMS) * time.Millisecond
		settleWindow := time.Duration(st.SettleWindowMS) * time.Millisecond
		if remaining := (stepWindow - elapsed).Seconds(); remaining > 0 {
			status.SecondsRemaining = remaining
		}
		status.Collecting = !st.Paused && elapsed >= settleWindow
	}

	if scheduler != nil {
		if next, running := scheduler.Status(); running && !next.IsZero() {
			status.ScheduledAt = &next
		}
	}

	return status
}
