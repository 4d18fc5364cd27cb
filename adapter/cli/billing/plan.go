package billing

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/felixgeelhaar/memberly/adapter/cli"
	"github.com/felixgeelhaar/memberly/internal/billing/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	planID             string
	planName           string
	planMonthly        int64
	planAnnual         int64
	planCurrency       string
	planBenefits       []string
	planGatewayMonthly string
	planGatewayAnnual  string
	planInactive       bool
	planListAll        bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage the plan catalog",
}

var planAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or update a plan",
	Long: `Prices are in minor currency units.

Examples:
  memberly billing plan add --name Pro --monthly 4990 --annual 49900 --gateway-monthly 2c93808 --benefit "Unlimited projects"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.Plans != nil })
		if err != nil {
			return err
		}
		if strings.TrimSpace(planName) == "" {
			return fmt.Errorf("%w: --name is required", domain.ErrValidation)
		}
		if planMonthly <= 0 && planAnnual <= 0 {
			return domain.ErrInvalidPrice
		}

		id := uuid.New()
		if planID != "" {
			if id, err = uuid.Parse(planID); err != nil {
				return fmt.Errorf("invalid plan id %q: %w", planID, err)
			}
		}
		currency := planCurrency
		if currency == "" {
			currency = a.Currency
		}

		plan := &domain.Plan{
			ID:                    id,
			Name:                  strings.TrimSpace(planName),
			MonthlyPrice:          planMonthly,
			AnnualPrice:           planAnnual,
			Currency:              strings.ToUpper(currency),
			Benefits:              planBenefits,
			Active:                !planInactive,
			ExternalMonthlyPlanID: planGatewayMonthly,
			ExternalAnnualPlanID:  planGatewayAnnual,
		}
		if err := a.Plans.Save(cmd.Context(), plan); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved plan %s (%s)\n", plan.Name, plan.ID)
		return nil
	},
}

var planListCmd = &cobra.Command{
	Use:   "list",
	Short: "List plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := currentApp(func(a *cli.App) bool { return a.Plans != nil })
		if err != nil {
			return err
		}
		plans, err := a.Plans.List(cmd.Context(), !planListAll)
		if err != nil {
			return err
		}
		if len(plans) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No plans.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMONTHLY\tANNUAL\tACTIVE")
		for _, p := range plans {
			fmt.Fprintf(w, "%s\t%s\t%d %s\t%d %s\t%t\n", p.ID, p.Name, p.MonthlyPrice, p.Currency, p.AnnualPrice, p.Currency, p.Active)
		}
		return w.Flush()
	},
}

func init() {
	planAddCmd.Flags().StringVar(&planID, "id", "", "plan id (new when empty)")
	planAddCmd.Flags().StringVar(&planName, "name", "", "plan name")
	planAddCmd.Flags().Int64Var(&planMonthly, "monthly", 0, "monthly price in minor units")
	planAddCmd.Flags().Int64Var(&planAnnual, "annual", 0, "annual price in minor units")
	planAddCmd.Flags().StringVar(&planCurrency, "currency", "", "ISO currency code")
	planAddCmd.Flags().StringArrayVar(&planBenefits, "benefit", nil, "benefit line, repeatable")
	planAddCmd.Flags().StringVar(&planGatewayMonthly, "gateway-monthly", "", "gateway plan id for the monthly cycle")
	planAddCmd.Flags().StringVar(&planGatewayAnnual, "gateway-annual", "", "gateway plan id for the annual cycle")
	planAddCmd.Flags().BoolVar(&planInactive, "inactive", false, "add the plan as inactive")
	planListCmd.Flags().BoolVar(&planListAll, "all", false, "include inactive plans")

	planCmd.AddCommand(planAddCmd)
	planCmd.AddCommand(planListCmd)
}
