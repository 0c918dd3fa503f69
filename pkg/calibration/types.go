package calibration

import "time"

// Phase defines phases of a gaze calibration session.
type Phase string

const (
	PhaseIdle        Phase = "Idle"
	PhaseCalibrating Phase = "Calibrating"
	PhaseRunning     Phase = "Running"
	PhaseError       Phase = "Error"
)

// Action defines user actions on a calibration session.
type Action string

const (
	ActionStart            Action = "Start"
	ActionPause            Action = "Pause"
	ActionResume           Action = "Resume"
	ActionCancel           Action = "Cancel"
	ActionSchedule         Action = "Schedule"
	ActionScheduleDisable  Action = "ScheduleDisable"
	ActionSchedulePostpone Action = "SchedulePostpone"
	ActionScheduleSkip     Action = "ScheduleSkip"
)

// Point is a normalized screen position. Both axes are in [0,1],
// independent of pixel resolution.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Step pairs one calibration target with the mean of the raw samples
// collected while it was displayed. Immutable once recorded.
type Step struct {
	Target   Point `json:"target"`
	Measured Point `json:"measured"`
}

// AxisMap is a 1-D affine transform: target = Scale*measured + Offset.
type AxisMap struct {
	Scale  float64 `json:"scale"`
	Offset float64 `json:"offset"`
}

// Mapping holds the two independent per-axis transforms fitted from the
// recorded steps. Read-only once fitted.
type Mapping struct {
	X AxisMap `json:"x"`
	Y AxisMap `json:"y"`
}

// State holds session runtime state persisted to disk.
type State struct {
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
	Paused    bool      `json:"paused"`
	// When paused, record the timestamp so the current step can be
	// restarted cleanly on resume.
	PauseStartedAt time.Time `json:"pauseStartedAt"`
	StepIndex      int       `json:"stepIndex"`
	StepStartedAt  time.Time `json:"stepStartedAt"`
	Steps          []Step    `json:"steps,omitempty"`
	Mapping        *Mapping  `json:"mapping,omitempty"`
	// Window snapshots taken at session start, so a config change mid-run
	// does not skew step timing.
	SettleWindowMS int    `json:"settleWindowMS"`
	StepWindowMS   int    `json:"stepWindowMS"`
	LastError      string `json:"lastError,omitempty"`
}

// Status is a synthesized view model exposed via HTTP telemetry and the
// watch command. It derives from State plus live readings (latest raw
// sample, calibrated point) and dynamic timers (seconds remaining in the
// current step).
type Status struct {
	Phase            Phase      `json:"phase"`
	StepIndex        int        `json:"stepIndex"`
	TotalSteps       int        `json:"totalSteps"`
	Target           *Point     `json:"target,omitempty"`
	SecondsRemaining float64    `json:"secondsRemaining"`
	Collecting       bool       `json:"collecting"`
	Raw              Point      `json:"raw"`
	Point            *Point     `json:"point,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	Paused           bool       `json:"paused"`
	CanPause         bool       `json:"canPause"`
	CanCancel        bool       `json:"canCancel"`
	Message          string     `json:"message,omitempty"`
	ScheduledAt      *time.Time `json:"scheduledAt,omitempty"`
}
