package billing

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/felixgeelhaar/memberly/internal/billing/application/commands"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	contractUser  string
	contractEmail string
	contractRole  string
	contractPlan  string
	contractCycle string
	contractToken string
	contractMode  string
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Contract a plan for a user",
	Long: `Creates a pending subscription and asks the gateway for a checkout.

Examples:
  memberly billing contract --user <id> --email ana@example.com --plan <plan-id> --cycle monthly
  memberly billing contract --user <id> --email ana@example.com --plan <plan-id> --cycle annual --mode one_off`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.ContractPlan != nil })
		if err != nil {
			return err
		}
		userID, err := parseUserID(contractUser)
		if err != nil {
			return err
		}
		planID, err := uuid.Parse(contractPlan)
		if err != nil {
			return fmt.Errorf("invalid plan id %q: %w", contractPlan, err)
		}

		result, err := a.ContractPlan.Handle(cmd.Context(), commands.ContractPlanCommand{
			UserID:       userID,
			Email:        contractEmail,
			Role:         contractRole,
			PlanID:       planID,
			BillingCycle: contractCycle,
			PaymentToken: contractToken,
			PaymentMode:  contractMode,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Subscription: %s (%s)\n", result.SubscriptionID, result.Status)
		if result.ReplacesSubscriptionID != nil {
			fmt.Fprintf(out, "Replaces: %s\n", *result.ReplacesSubscriptionID)
		}
		if result.CheckoutURL != "" {
			fmt.Fprintf(out, "Checkout: %s\n", result.CheckoutURL)
			fmt.Fprintf(out, "Expires: %s\n", result.ExpiresAt.Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	contractCmd.Flags().StringVar(&contractUser, "user", "", "user id")
	contractCmd.Flags().StringVar(&contractEmail, "email", "", "payer email")
	contractCmd.Flags().StringVar(&contractRole, "role", "", "role of the user")
	contractCmd.Flags().StringVar(&contractPlan, "plan", "", "plan id")
	contractCmd.Flags().StringVar(&contractCycle, "cycle", "monthly", "billing cycle (monthly, annual)")
	contractCmd.Flags().StringVar(&contractToken, "token", "", "card token for immediate authorization")
	contractCmd.Flags().StringVar(&contractMode, "mode", "recurring", "payment mode (recurring, one_off)")
	_ = contractCmd.MarkFlagRequired("plan")
}
