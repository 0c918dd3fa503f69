package events

import "encoding/json"

// Event name constants
const (
	SessionPhase    = "session.phase"
	SessionAction   = "session.action"
	CalibrationStep = "calibration.step"
	GazeFrame       = "gaze.frame"
)

// Event is a generic SSE event from the daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// SessionPhaseEvent is the typed payload for session.phase.
type SessionPhaseEvent struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// SessionActionEvent is the typed payload for session.action.
type SessionActionEvent struct {
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
	Ts      int64  `json:"ts"`
}

// CalibrationStepEvent is the typed payload for calibration.step,
// published each time a step closes.
type CalibrationStepEvent struct {
	Step      int     `json:"step"` // 1-based, the step just closed
	Total     int     `json:"total"`
	TargetX   float64 `json:"targetX"`
	TargetY   float64 `json:"targetY"`
	MeasuredX float64 `json:"measuredX"`
	MeasuredY float64 `json:"measuredY"`
	Ts        int64   `json:"ts"`
}

// GazeFrameEvent is the typed payload for gaze.frame, the per-tick
// render input for display clients. During calibration the target
// fields describe the dot to draw and the countdown; while running only
// the calibrated point is meaningful.
type GazeFrameEvent struct {
	Phase            string  `json:"phase"`
	Step             int     `json:"step,omitempty"` // 1-based
	Total            int     `json:"total,omitempty"`
	TargetX          float64 `json:"targetX,omitempty"`
	TargetY          float64 `json:"targetY,omitempty"`
	SecondsRemaining float64 `json:"secondsRemaining,omitempty"`
	Collecting       bool    `json:"collecting,omitempty"`
	X                float64 `json:"x"`
	Y                float64 `json:"y"`
	Ts               int64   `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic
// type T. It ignores the event name and simply unmarshals Data into T.
// If Data is empty, it returns the zero value of T with a nil error.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
