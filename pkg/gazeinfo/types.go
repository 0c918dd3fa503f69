// Package gazeinfo holds the telemetry view models served over HTTP.
package gazeinfo

import (
	"time"

	"github.com/eyetrax/gazed/pkg/calibration"
)

// Gaze is the live tracking snapshot: latest raw sample, calibrated
// point (once a mapping exists), and sampler health.
type Gaze struct {
	Raw            calibration.Point  `json:"raw"`
	Point          *calibration.Point `json:"point,omitempty"`
	SamplerHealthy bool               `json:"samplerHealthy"`
	LastSampleAt   time.Time          `json:"lastSampleAt"`
	TickIntervalMS int                `json:"tickIntervalMS"`
}

// Telemetry is the unified telemetry response.
type Telemetry struct {
	Gaze        *Gaze               `json:"gaze,omitempty"`
	Calibration *calibration.Status `json:"calibration,omitempty"`
}
