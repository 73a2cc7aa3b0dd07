package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"twelvecp/internal/analytics"
)

// Simulate runs a fresh analysis and prints the what-if cost comparison for
// the given facility and strategy.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	strategy := analytics.StrategyType(opts.Strategy)
	if !analytics.ValidStrategy(strategy) {
		return fmt.Errorf("unknown strategy %q (expected full, partial, or none)", opts.Strategy)
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot simulate")
	}
	if closeStore != nil {
		defer closeStore()
	}

	analyzer := a.newAnalyzer(store)
	if err := analyzer.FetchAndAnalyze(ctx, nowUTC(), opts.LookbackMonths); err != nil {
		if errors.Is(err, analytics.ErrNoData) {
			fmt.Fprintln(os.Stdout, "no price data available")
			return nil
		}
		return err
	}

	result := analyzer.CalculateSavings(
		decimal.NewFromFloat(opts.FacilityMW),
		decimal.NewFromFloat(opts.OperatingHours),
		strategy,
	)
	if result == nil {
		return errors.New("simulation produced no result")
	}

	data := analyzer.Data()
	fmt.Fprintf(os.Stdout, "Facility: %.1f MW, %.0f operating hours, strategy %s (%d peaks avoided)\n",
		opts.FacilityMW, opts.OperatingHours, result.Strategy, result.HoursAvoided)
	fmt.Fprintf(os.Stdout, "Annual avg $%s/MWh, annual peak $%s/MWh, transmission adder $%s/MW/h\n\n",
		formatDecimal(data.AnnualAvgPrice, 2),
		formatDecimal(data.AnnualPeakPrice, 2),
		analytics.TransmissionAdder.String(),
	)

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "\tEnergy\tTransmission\tTotal")
	fmt.Fprintf(writer, "Without strategy\t$%s\t$%s\t$%s\n",
		result.WithoutStrategy.EnergyCost, result.WithoutStrategy.TransmissionCost, result.WithoutStrategy.Total)
	fmt.Fprintf(writer, "With strategy\t$%s\t$%s\t$%s\n",
		result.WithStrategy.EnergyCost, result.WithStrategy.TransmissionCost, result.WithStrategy.Total)
	writer.Flush()

	fmt.Fprintf(os.Stdout, "\nSavings: $%s (%s%%)\n", result.Savings.Amount, result.Savings.Percentage)
	return nil
}
