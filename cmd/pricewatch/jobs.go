package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jpalmerr/pricewatch"
	"github.com/jpalmerr/pricewatch/config"
	"github.com/spf13/cobra"
)

// checkPriceCmd starts a price check and follows it to the end.
var checkPriceCmd = &cobra.Command{
	Use:   "check-price",
	Short: "Start a price check and follow it",
	Long: `Start a price check on the backend and poll its status until the job
stops, the check limit is reached, or the command is interrupted.

Exit codes:
  0 - The job completed
  1 - The job failed, was not found, timed out or could not be started

Example:
  pricewatch check-price -c config.yaml
  pricewatch check-price --backend http://localhost:5000 --interval 2s`,
	RunE: runJob(pricewatch.JobCheckPrice),
}

// notifyTestCmd starts a notification test and follows it to the end.
var notifyTestCmd = &cobra.Command{
	Use:   "notify-test",
	Short: "Start a notification test and follow it",
	Long: `Start a notification test on the backend and poll its status until the
job stops. The backend resets every price to zero before scraping, so each
item with notifications enabled sends a LINE message.

Exit codes:
  0 - The job completed
  1 - The job failed, was not found, timed out or could not be started

Example:
  pricewatch notify-test -c config.yaml`,
	RunE: runJob(pricewatch.JobNotificationTest),
}

func init() {
	for _, cmd := range []*cobra.Command{checkPriceCmd, notifyTestCmd} {
		cmd.Flags().Duration("interval", 0, "polling interval, overrides polling.interval")
		cmd.Flags().Int("max-checks", 0, "check limit, overrides polling.max_checks")
		rootCmd.AddCommand(cmd)
	}
}

func runJob(kind pricewatch.JobKind) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, client, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer client.Close()

		if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
			cfg.Polling.Interval = config.Duration(interval)
		}
		if maxChecks, _ := cmd.Flags().GetInt("max-checks"); maxChecks > 0 {
			cfg.Polling.MaxChecks = maxChecks
		}

		out := cmd.OutOrStdout()
		opts := append(config.BuildTrackerOptions(cfg, newLogger(slog.LevelWarn)),
			pricewatch.WithEventCallback(func(ev pricewatch.Event) {
				printEvent(out, ev)
			}),
		)
		tracker, err := pricewatch.NewTracker(client, opts...)
		if err != nil {
			return err
		}
		defer tracker.Close()

		ctx, stop := signalContext(cmd)
		defer stop()

		outcome, err := tracker.Run(ctx, kind)
		if err != nil {
			return err
		}
		if outcome.State != pricewatch.StateCompleted {
			return fmt.Errorf("%s ended %s after %d checks", kind, outcome.State, outcome.Checks)
		}
		fmt.Fprintf(out, "%s completed in %s\n", kind, outcome.EndedAt.Sub(outcome.StartedAt).Round(time.Second))
		return nil
	}
}

func printEvent(w io.Writer, ev pricewatch.Event) {
	fmt.Fprintf(w, "%s [%s] %s\n", ev.At.Format(time.TimeOnly), ev.Type, ev.Message)
}
