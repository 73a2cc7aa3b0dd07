package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"twelvecp/internal/app"
)

var (
	simulateMW       float64
	simulateHours    float64
	simulateStrategy string
	simulateLookback int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate annual costs with and without peak avoidance",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateMW <= 0 {
			return errors.New("--mw must be greater than 0")
		}
		if simulateHours <= 0 || simulateHours > 8760 {
			return errors.New("--hours must be in (0, 8760]")
		}

		opts := app.SimulateOptions{
			FacilityMW:     simulateMW,
			OperatingHours: simulateHours,
			Strategy:       simulateStrategy,
			LookbackMonths: simulateLookback,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateMW, "mw", 0, "Facility size in MW")
	simulateCmd.Flags().Float64Var(&simulateHours, "hours", 8760, "Annual operating hours")
	simulateCmd.Flags().StringVar(&simulateStrategy, "strategy", "full", "Peak avoidance strategy: full, partial, or none")
	simulateCmd.Flags().IntVar(&simulateLookback, "lookback", 0, "Look-back window in months (default from config)")
}
