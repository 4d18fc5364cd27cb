package billing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/felixgeelhaar/memberly/internal/billing/application/queries"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/spf13/cobra"
)

var statusUser string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.GetUserPlan != nil })
		if err != nil {
			return err
		}
		userID, err := parseUserID(statusUser)
		if err != nil {
			return err
		}

		plan, err := a.GetUserPlan.Handle(cmd.Context(), queries.GetUserPlanQuery{UserID: userID})
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			fmt.Fprintln(cmd.OutOrStdout(), "No subscription found.")
			return nil
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		name := plan.PlanName
		if name == "" {
			name = plan.PlanID.String()
		}
		fmt.Fprintf(out, "Subscription: %s (%s)\n", name, plan.Status)
		fmt.Fprintf(out, "Access: %t\n", plan.HasAccess)
		fmt.Fprintf(out, "Cycle: %s, %s\n", plan.BillingCycle, plan.PaymentMode)
		fmt.Fprintf(out, "Period: %s to %s\n", formatDate(plan.StartDate), formatDate(plan.EndDate))
		if plan.NextPaymentDate != nil {
			fmt.Fprintf(out, "Next payment: %s\n", formatDate(plan.NextPaymentDate))
		}
		if plan.PaymentStatus != "" {
			fmt.Fprintf(out, "Last payment: %s %s\n", plan.PaymentStatus, plan.PaymentStatusDetail)
		}
		if plan.RetryCount > 0 {
			fmt.Fprintf(out, "Failed attempts: %d\n", plan.RetryCount)
		}
		if len(plan.Benefits) > 0 {
			fmt.Fprintf(out, "Benefits: %s\n", strings.Join(plan.Benefits, ", "))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusUser, "user", "", "user id")
}
