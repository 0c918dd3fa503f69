package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eyetrax/gazed/pkg/calibration"
	"github.com/eyetrax/gazed/pkg/config"
	"github.com/eyetrax/gazed/pkg/gazeinfo"
)

type statusData struct {
	telemetry *gazeinfo.Telemetry
	config    *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	tr, err := apiClient.GetTelemetry(true, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get telemetry: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		telemetry: tr,
		config:    conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of gazed",
		Long:    `Get gazed session status, gaze telemetry, and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			conf := config.NewFileFromConfig(data.config, "")
			st := data.telemetry.Calibration
			gz := data.telemetry.Gaze

			cmd.Println(bold("Session status:"))
			if st != nil {
				cmd.Printf("  Phase: %s\n", bold("%s", phaseText(st.Phase)))
				if st.Phase == calibration.PhaseCalibrating {
					cmd.Printf("  Step: %s\n", bold("%d of %d", st.StepIndex, st.TotalSteps))
					if st.Target != nil {
						cmd.Printf("  Target: %s\n", bold("(%.1f, %.1f)", st.Target.X, st.Target.Y))
					}
					if st.SecondsRemaining > 0 {
						cmd.Printf("  Step time remaining: %s\n", bold("%.1fs", st.SecondsRemaining))
					}
					cmd.Printf("  Collecting samples: %s\n", bool2Text(st.Collecting))
					cmd.Printf("  Paused: %s\n", bool2Text(st.Paused))
				}
				if !st.StartedAt.IsZero() {
					cmd.Printf("  Started: %s (%s ago)\n", st.StartedAt.Format(time.DateTime), time.Since(st.StartedAt).Round(time.Second))
				}
				if st.ScheduledAt != nil {
					cmd.Printf("  Next scheduled recalibration: %s\n", bold("%s", st.ScheduledAt.Local().Format(time.DateTime)))
				}
				if st.Message != "" {
					cmd.Printf("  Message: %s\n", st.Message)
				}
			}

			cmd.Println()

			cmd.Println(bold("Gaze:"))
			if gz != nil {
				cmd.Printf("  Sampler healthy: %s\n", bool2Text(gz.SamplerHealthy))
				cmd.Printf("  Raw sample: %s\n", bold("(%.3f, %.3f)", gz.Raw.X, gz.Raw.Y))
				if gz.Point != nil {
					cmd.Printf("  Calibrated point: %s\n", bold("(%.3f, %.3f)", gz.Point.X, gz.Point.Y))
				} else {
					cmd.Println("  Calibrated point: " + color.New(color.Faint).Sprint("none (not calibrated)"))
				}
				if !gz.LastSampleAt.IsZero() {
					cmd.Printf("  Last sample: %s ago\n", time.Since(gz.LastSampleAt).Round(time.Millisecond))
				}
			}

			cmd.Println()

			cmd.Println(bold("Configuration:"))
			cmd.Printf("  Tick interval: %s\n", bold("%dms", conf.TickIntervalMS()))
			cmd.Printf("  Settle window: %s\n", bold("%dms", conf.SettleWindowMS()))
			cmd.Printf("  Step window: %s\n", bold("%dms", conf.StepWindowMS()))
			cmd.Printf("  Camera index: %s\n", bold("%d", conf.CameraIndex()))
			cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
			if cron := conf.RecalibrationCron(); cron != "" {
				cmd.Printf("  Recalibration schedule: %s\n", bold("%s", cron))
			} else {
				cmd.Println("  Recalibration schedule: " + color.New(color.Faint).Sprint("not set"))
			}
			return nil
		},
	}
}

func phaseText(p calibration.Phase) string {
	switch p {
	case calibration.PhaseRunning:
		return color.GreenString(string(p))
	case calibration.PhaseCalibrating:
		return color.YellowString(string(p))
	case calibration.PhaseError:
		return color.RedString(string(p))
	default:
		return string(p)
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
