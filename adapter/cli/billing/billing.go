// Package billing holds the memberly billing commands.
package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("billing commands require database connection")

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Contract plans and reconcile subscriptions",
	Long: `Contract and cancel plans, inspect a user's subscription, replay
gateway notifications and run the expiration sweep.`,
}

func init() {
	Cmd.AddCommand(contractCmd)
	Cmd.AddCommand(cancelCmd)
	Cmd.AddCommand(statusCmd)
	Cmd.AddCommand(archiveCmd)
	Cmd.AddCommand(webhookCmd)
	Cmd.AddCommand(sweepCmd)
	Cmd.AddCommand(planCmd)
}

// currentApp returns the wired app, or errNoDatabase when the CLI runs
// without a container.
func currentApp(ready func(*cli.App) bool) (*cli.App, error) {
	a := cli.GetApp()
	if a == nil || !ready(a) {
		return nil, errNoDatabase
	}
	return a, nil
}

func parseUserID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, errors.New("--user is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", raw, err)
	}
	return id, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
