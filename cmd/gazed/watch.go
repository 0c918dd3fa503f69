package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eyetrax/gazed/pkg/calibration"
	"github.com/eyetrax/gazed/pkg/events"
)

// NewWatchCommand streams daemon events to the terminal. It is the
// poor man's calibration display: it shows which target to look at,
// the countdown, and the live calibrated point.
func NewWatchCommand() *cobra.Command {
	showFrames := false

	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: gBasic,
		Short:   "Follow calibration progress and gaze events live",
		Long: `Follow calibration progress and gaze events live.

During calibration this shows the current target position and countdown
so it can be used as a minimal on-terminal calibration display. Press
Ctrl-C to stop watching; the daemon keeps running.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			ch, err := apiClient.StreamEvents(ctx)
			if err != nil {
				return fmt.Errorf("failed to open event stream: %w", err)
			}

			cmd.Println("Watching gazed events. Press Ctrl-C to stop.")

			for ev := range ch {
				printEvent(cmd, ev, showFrames)
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&showFrames, "frames", "f", false,
		"Also print per-tick gaze frames. Noisy: one line per tick.")

	return cmd
}

func printEvent(cmd *cobra.Command, ev events.Event, showFrames bool) {
	ts := time.Now().Format("15:04:05")

	switch ev.Name {
	case events.SessionPhase:
		p, err := events.DecodeAs[events.SessionPhaseEvent](ev)
		if err != nil {
			return
		}
		cmd.Printf("%s %s %s -> %s", ts, bold("phase"), p.From, phaseText(calibration.Phase(p.To)))
		if p.Message != "" {
			cmd.Printf(" (%s)", p.Message)
		}
		cmd.Println()
	case events.SessionAction:
		a, err := events.DecodeAs[events.SessionActionEvent](ev)
		if err != nil {
			return
		}
		cmd.Printf("%s %s %s", ts, bold("action"), a.Action)
		if a.Message != "" {
			cmd.Printf(": %s", a.Message)
		}
		cmd.Println()
	case events.CalibrationStep:
		s, err := events.DecodeAs[events.CalibrationStepEvent](ev)
		if err != nil {
			return
		}
		cmd.Printf("%s %s %d/%d closed: target (%.1f, %.1f) measured (%.3f, %.3f)\n",
			ts, bold("step"), s.Step, s.Total, s.TargetX, s.TargetY, s.MeasuredX, s.MeasuredY)
	case events.GazeFrame:
		f, err := events.DecodeAs[events.GazeFrameEvent](ev)
		if err != nil {
			return
		}
		if f.Phase == string(calibration.PhaseCalibrating) {
			// Frames carry the render input for the current target; show
			// a compact live line even without -f.
			state := "settling"
			if f.Collecting {
				state = color.GreenString("collecting")
			}
			cmd.Printf("\r%s target %d/%d at (%.1f, %.1f) %s, %.1fs left    ",
				ts, f.Step, f.Total, f.TargetX, f.TargetY, state, f.SecondsRemaining)
			return
		}
		if showFrames {
			cmd.Printf("%s %s (%.3f, %.3f)\n", ts, bold("gaze"), f.X, f.Y)
		}
	}
}
