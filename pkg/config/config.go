package config

import "github.com/sirupsen/logrus"

type Config interface {
	TickIntervalMS() int
	SettleWindowMS() int
	StepWindowMS() int
	CameraIndex() int
	FaceCascadePath() string
	EyeCascadePath() string
	AllowNonRootAccess() bool
	RecalibrationCron() string

	SetTickIntervalMS(int)
	SetSettleWindowMS(int)
	SetStepWindowMS(int)
	SetCameraIndex(int)
	SetAllowNonRootAccess(bool)
	SetRecalibrationCron(string)

	LogrusFields() logrus.Fields

	// Load reads the configuration from the source.
	Load() error
	// Save saves the configuration to the source.
	Save() error
}
