package billing

import (
	"fmt"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <subscription-id>",
	Short: "Archive a closed subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.ArchiveSubscription != nil })
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid subscription id %q: %w", args[0], err)
		}
		if err := a.ArchiveSubscription.Handle(cmd.Context(), commands.ArchiveSubscriptionCommand{SubscriptionID: id}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Archived subscription %s\n", id)
		return nil
	},
}
