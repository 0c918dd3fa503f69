package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/eyetrax/gazed/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewSettleWindowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "settle-window [milliseconds]",
		Short:   "Set the per-step settle window",
		GroupID: gAdvanced,
		Long: `Set the per-step settle window in milliseconds.

At the start of each calibration step the user needs a moment to move
their eyes to the new target. Samples taken during this window are
discarded. The settle window must be shorter than the step window.

The change applies to the next calibration session.`,
		RunE: func(_ *cobra.Command, args []string) error {
			ms, err := parseIntArg(args, "settle window")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetSettleWindowMS(ms)
			if err != nil {
				return fmt.Errorf("failed to set settle window: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set settle window to %dms", ms)

			return nil
		},
	}
}

func NewStepWindowCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "step-window [milliseconds]",
		Short:   "Set the per-step total window",
		GroupID: gAdvanced,
		Long: `Set the total duration of each calibration step in milliseconds.

Each of the nine targets is shown for this long. Samples collected
after the settle window elapses are averaged into the step measurement.
The step window must be longer than the settle window.

The change applies to the next calibration session.`,
		RunE: func(_ *cobra.Command, args []string) error {
			ms, err := parseIntArg(args, "step window")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetStepWindowMS(ms)
			if err != nil {
				return fmt.Errorf("failed to set step window: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set step window to %dms", ms)

			return nil
		},
	}
}

func NewTickIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "tick-interval [milliseconds]",
		Short:   "Set the sampling tick interval",
		GroupID: gAdvanced,
		Long: `Set the sampling tick interval in milliseconds.

The daemon polls the gaze sampler once per tick. A shorter interval
collects more samples per calibration step at the cost of CPU. Must be
between 10 and 1000 milliseconds.`,
		RunE: func(_ *cobra.Command, args []string) error {
			ms, err := parseIntArg(args, "tick interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetTickIntervalMS(ms)
			if err != nil {
				return fmt.Errorf("failed to set tick interval: %v", err)
			}

			if ret != "" {
				logrus.Infof("daemon responded: %s", ret)
			}

			logrus.Infof("successfully set tick interval to %dms", ms)

			return nil
		},
	}
}
