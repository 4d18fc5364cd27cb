package billing

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close subscriptions past their end date",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.Sweep != nil })
		if err != nil {
			return err
		}
		report, err := a.Sweep.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled: %d, expired: %d, skipped: %d, failed: %d (%s)\n",
			report.Cancelled, report.Expired, report.Skipped, report.Failed, report.Duration.Round(time.Millisecond))
		if report.Failed > 0 {
			return fmt.Errorf("%d subscriptions could not be closed", report.Failed)
		}
		return nil
	},
}
