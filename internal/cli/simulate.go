package cli

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"penwatch/internal/app"
)

var (
	simulateOfficial string
	simulateStreet   string
	simulateMin      string
	simulateMax      string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate static prices against the saved state and send the message",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{}

		var err error
		if opts.Official, err = decimal.NewFromString(simulateOfficial); err != nil {
			return fmt.Errorf("invalid --official value: %w", err)
		}
		if opts.Min, err = decimal.NewFromString(simulateMin); err != nil {
			return fmt.Errorf("invalid --min value: %w", err)
		}
		if opts.Max, err = decimal.NewFromString(simulateMax); err != nil {
			return fmt.Errorf("invalid --max value: %w", err)
		}
		if simulateStreet != "" {
			street, err := decimal.NewFromString(simulateStreet)
			if err != nil {
				return fmt.Errorf("invalid --street value: %w", err)
			}
			opts.Street = decimal.NewNullDecimal(street)
		}

		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateOfficial, "official", "", "Official close, PEN per USD")
	simulateCmd.Flags().StringVar(&simulateStreet, "street", "", "Parallel market quote (optional)")
	simulateCmd.Flags().StringVar(&simulateMin, "min", "", "30-day minimum")
	simulateCmd.Flags().StringVar(&simulateMax, "max", "", "30-day maximum")
	_ = simulateCmd.MarkFlagRequired("official")
	_ = simulateCmd.MarkFlagRequired("min")
	_ = simulateCmd.MarkFlagRequired("max")
}
