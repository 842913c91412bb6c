package cli

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"kaspa-price-alerts/internal/app"
)

var (
	simulatePrice  float64
	simulateDryRun bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Record one sample at the given price and run detection on it",
	Long: "Record one sample at the given price and run detection on it.\n\n" +
		"Without --dry-run the sample, any new ATH and any collapse are written to the\n" +
		"configured store and alerts go to registered channels. With --dry-run the\n" +
		"cycle runs on an in-memory copy of the store and alerts are printed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrice <= 0 {
			return errors.New("--price must be greater than zero")
		}

		opts := app.SimulateOptions{
			Price:  decimal.NewFromFloat(simulatePrice),
			At:     time.Now().UTC().Truncate(time.Second),
			DryRun: simulateDryRun,
		}
		return getApp().SimulateAlert(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulatePrice, "price", 0, "Spot price to record, in USD")
	simulateCmd.Flags().BoolVar(&simulateDryRun, "dry-run", false, "Print alerts instead of sending them and leave stored data unchanged")
}
