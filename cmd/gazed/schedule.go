package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "schedule [cron-expression]",
		Aliases: []string{"sch", "sche", "sched"},
		Short:   "Manage automatic recalibration schedule",
		Long: `Manage automatic recalibration schedule.

Eye trackers drift as lighting and posture change, so periodic
recalibration keeps the mapping accurate.

The schedule command can be used in multiple ways:
  gazed schedule 'minute hour day month weekday' Set schedule with cron expression
  gazed schedule disable                         Disable the schedule
  gazed schedule postpone [duration]             Postpone next run
  gazed schedule skip                            Skip next run
  gazed schedule show                            Show current schedule`,
		Example: `  gazed schedule '0 9 * * *'   (Every day at 09:00)
  gazed schedule '0 9 * * 1'   (Every Monday at 09:00)
  gazed schedule '@every 4h'   (Every four hours)`,
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, args []string) error {
			// If no arguments, show the current schedule
			if len(args) == 0 {
				return runScheduleShow(cmd)
			}
			// Otherwise, treat as a cron expression to set
			return runScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		newScheduleDisableCommand(),
		newSchedulePostponeCommand(),
		newScheduleSkipCommand(),
		newScheduleShowCommand(),
	)

	return cmd
}

func newScheduleDisableCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Disable the recalibration schedule",
		Long:  "Disable the automatic recalibration schedule.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleDisable(cmd)
		},
	}
}

func newSchedulePostponeCommand() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled recalibration",
		Example: `  gazed schedule postpone      (Postpone by 1 hour)
  gazed schedule postpone 90m  (Postpone by 90 minutes)
  gazed schedule postpone 2h   (Postpone by 2 hours)`,
		Long: `Postpone the next scheduled recalibration by a specified duration.
If no duration is provided, defaults to 1 hour.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := time.Hour // default
			if duration != 0 {
				d = duration
			}
			if len(args) > 0 {
				parsed, err := time.ParseDuration(args[0])
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
				d = parsed
			}
			return runSchedulePostpone(cmd, d)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "Duration to postpone (e.g., 1h, 90m)")
	return cmd
}

func newScheduleSkipCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "skip",
		Short: "Skip the next scheduled recalibration",
		Long:  "Skip the next scheduled recalibration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleSkip(cmd)
		},
	}
}

func newScheduleShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current recalibration schedule",
		Long:  "Show the current recalibration schedule and next run times.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScheduleShow(cmd)
		},
	}
}

func runScheduleSet(cmd *cobra.Command, cronExpr string) error {
	if cronExpr == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	resp, err := apiClient.SetSchedule(cronExpr)
	if err != nil {
		return err
	}
	cmd.Printf("Recalibration scheduled. Next %d run(s):\n", len(resp.NextRuns))
	for _, run := range resp.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}

func runScheduleDisable(cmd *cobra.Command) error {
	if _, err := apiClient.SetSchedule(""); err != nil {
		return err
	}
	cmd.Println("Recalibration schedule disabled.")
	return nil
}

func runSchedulePostpone(cmd *cobra.Command, duration time.Duration) error {
	if _, err := apiClient.PostponeSchedule(duration); err != nil {
		return err
	}
	cmd.Printf("Next run postponed by %s.\n", duration)
	return nil
}

func runScheduleSkip(cmd *cobra.Command) error {
	if _, err := apiClient.SkipSchedule(); err != nil {
		return err
	}
	cmd.Println("Next scheduled run skipped.")
	return nil
}

func runScheduleShow(cmd *cobra.Command) error {
	resp, err := apiClient.GetSchedule()
	if err != nil {
		return err
	}
	if resp.Cron == "" {
		cmd.Println("Recalibration schedule is not set.")
		return nil
	}
	cmd.Printf("Schedule: %s\n", resp.Cron)
	cmd.Printf("Next %d run(s):\n", len(resp.NextRuns))
	for _, run := range resp.NextRuns {
		cmd.Printf("  - %s\n", run.Local().Format(time.DateTime))
	}
	return nil
}
