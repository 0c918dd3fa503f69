package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eyetrax/gazed/pkg/calibration"
)

func NewCalibrationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "calibration",
		Aliases: []string{"calibrate", "cali"},
		Short:   "Manage the gaze calibration session",
		Long:    "Start, monitor, and control the nine-target gaze calibration session.",
		GroupID: gBasic,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new calibration session using current config windows",
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.StartCalibration()
			if err != nil {
				return fmt.Errorf("failed to start calibration: %w", err)
			}
			fmt.Println(ret)
			fmt.Println("Look at each target as it appears. Use 'gazed watch' to follow progress.")
			return nil
		},
	}

	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Pause an in-progress calibration",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := apiClient.PauseCalibration()
			if err != nil {
				return fmt.Errorf("failed to pause calibration: %w", err)
			}
			fmt.Println("Calibration paused.")
			return nil
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused calibration (restarts the current step)",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := apiClient.ResumeCalibration()
			if err != nil {
				return fmt.Errorf("failed to resume calibration: %w", err)
			}
			fmt.Println("Calibration resumed. The current step starts over.")
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel (abort) the calibration session",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := apiClient.CancelCalibration()
			if err != nil {
				return fmt.Errorf("failed to cancel calibration: %w", err)
			}
			fmt.Println("Calibration canceled.")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show current calibration status",
		RunE: func(_ *cobra.Command, _ []string) error {
			tr, err := apiClient.GetTelemetry(false, true)
			if err != nil {
				return fmt.Errorf("failed to fetch calibration status: %w", err)
			}
			if tr.Calibration == nil {
				fmt.Println("No calibration data (idle or unavailable).")
				return nil
			}
			printSessionStatus(tr.Calibration)
			return nil
		},
	}

	cmd.AddCommand(startCmd, pauseCmd, resumeCmd, cancelCmd, statusCmd)
	return cmd
}

func printSessionStatus(st *calibration.Status) {
	fmt.Printf("Phase: %s\n", bold("%s", string(st.Phase)))
	if st.Phase == calibration.PhaseCalibrating {
		fmt.Printf("Step: %s\n", bold("%d of %d", st.StepIndex, st.TotalSteps))
		if st.Target != nil {
			fmt.Printf("Target: %s\n", bold("(%.1f, %.1f)", st.Target.X, st.Target.Y))
		}
		if st.SecondsRemaining > 0 {
			fmt.Printf("Step remaining: %s\n", bold("%.1fs", st.SecondsRemaining))
		}
		fmt.Printf("Collecting: %v\n", st.Collecting)
	}
	if st.Point != nil {
		fmt.Printf("Calibrated point: %s\n", bold("(%.3f, %.3f)", st.Point.X, st.Point.Y))
	}
	fmt.Printf("Raw sample: (%.3f, %.3f)\n", st.Raw.X, st.Raw.Y)
	if !st.StartedAt.IsZero() {
		fmt.Printf("Started: %s (%s ago)\n", st.StartedAt.Format(time.RFC3339), time.Since(st.StartedAt).Round(time.Second))
	}
	fmt.Printf("Paused: %v\n", st.Paused)
	fmt.Printf("Can Pause: %v  Can Cancel: %v\n", st.CanPause, st.CanCancel)
	if st.ScheduledAt != nil {
		fmt.Printf("Next scheduled recalibration: %s\n", st.ScheduledAt.Local().Format(time.DateTime))
	}
	if st.Message != "" {
		fmt.Printf("Message: %s\n", color.RedString(st.Message))
	}
}
