package billing

import (
	"fmt"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/spf13/cobra"
)

var (
	cancelUser   string
	cancelEmail  string
	cancelReason string
)

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a user's subscription",
	Long: `Requests cancellation. A paid subscription keeps access until its end
date; an unpaid one is cancelled immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.CancelSubscription != nil })
		if err != nil {
			return err
		}
		userID, err := parseUserID(cancelUser)
		if err != nil {
			return err
		}

		result, err := a.CancelSubscription.Handle(cmd.Context(), commands.CancelSubscriptionCommand{
			UserID: userID,
			Email:  cancelEmail,
			Reason: cancelReason,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Subscription: %s (%s)\n", result.SubscriptionID, result.Status)
		if result.Status == domain.StatusPendingCancellation {
			fmt.Fprintf(cmd.OutOrStdout(), "Access until: %s\n", formatDate(result.AccessUntil))
		}
		return nil
	},
}

func init() {
	cancelCmd.Flags().StringVar(&cancelUser, "user", "", "user id")
	cancelCmd.Flags().StringVar(&cancelEmail, "email", "", "address for the confirmation email")
	cancelCmd.Flags().StringVar(&cancelReason, "reason", "", "cancellation reason")
}
