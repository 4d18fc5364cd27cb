package billing

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/felixgeelhaar/memberly/internal/billing/application/webhooks"
	"github.com/felixgeelhaar/memberly/internal/shared/infrastructure/security"
	"github.com/felixgeelhaar/memberly/pkg/observability"
	"github.com/spf13/cobra"
)

var webhookEventPath string

var webhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Replay a gateway notification",
	Long: `Applies a saved gateway notification as if it had been delivered.
Replaying an applied notification is acknowledged as a duplicate.

Examples:
  memberly billing webhook --event ./notification.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if webhookEventPath == "" {
			return errors.New("event path is required")
		}
		a, err := currentApp(func(a *cli.App) bool { return a.Webhooks != nil })
		if err != nil {
			return err
		}

		payload, err := security.ReadPayloadFile(webhookEventPath)
		if err != nil {
			return err
		}
		event, err := webhooks.ParseEvent(payload)
		if err != nil {
			return fmt.Errorf("invalid webhook payload: %w", err)
		}

		ctx := observability.NewRequestContext(cmd.Context(), event.ID)
		outcome, err := a.Webhooks.Dispatch(ctx, event)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Notification %s %s: %s\n", event.Type, event.DataID, outcome)
		return nil
	},
}

func init() {
	webhookCmd.Flags().StringVar(&webhookEventPath, "event", "", "path to webhook event JSON")
}
