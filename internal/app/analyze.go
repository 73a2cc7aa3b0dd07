package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"twelvecp/internal/analytics"
)

// Analyze runs a full analysis over the stored window and prints the
// monthly comparisons, risk profile, and seasonal insights.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	data, cleanup, err := a.runAnalysis(ctx, opts.LookbackMonths)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return err
	}
	if data == nil {
		fmt.Fprintln(os.Stdout, "no price data available")
		return nil
	}

	printMonthly(data)
	printRiskProfile(data)
	printSeasonal(data)
	printSummary(data)
	return nil
}

// runAnalysis opens the store, runs one analysis ending now, and returns
// the aggregate. A nil aggregate with a nil error is the no-data condition.
func (a *App) runAnalysis(ctx context.Context, lookbackMonths int) (*analytics.SavingsData, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	if store == nil {
		return nil, nil, errors.New("database not configured; cannot analyze")
	}

	analyzer := a.newAnalyzer(store)
	if err := analyzer.FetchAndAnalyze(ctx, nowUTC(), lookbackMonths); err != nil {
		if errors.Is(err, analytics.ErrNoData) {
			return nil, closeStore, nil
		}
		return nil, closeStore, err
	}
	return analyzer.Data(), closeStore, nil
}

func printMonthly(data *analytics.SavingsData) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Month\tAvg $/MWh\tPeak Hr\tPeak $/MWh\tOpportunity\tHours")
	for _, m := range data.Monthly {
		fmt.Fprintf(writer, "%s\t%s\t%02d:00\t%s\t%s\t%d\n",
			m.MonthLabel,
			formatDecimal(m.AvgPrice, 2),
			m.PeakHour,
			formatDecimal(m.PeakHourPrice, 2),
			formatDecimal(m.SavingsOpportunity, 2),
			m.TotalHours,
		)
	}
	writer.Flush()
	fmt.Fprintln(os.Stdout)
}

func printRiskProfile(data *analytics.SavingsData) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Hour\tAvg $/MWh\tRisk\tPattern\tObs")
	for _, r := range data.RiskProfile {
		fmt.Fprintf(writer, "%02d:00\t%s\t%d\t%s\t%d\n",
			r.Hour,
			formatDecimal(r.AvgPriceAtPeak, 2),
			r.RiskScore,
			r.SeasonalPattern,
			r.Occurrences,
		)
	}
	writer.Flush()
	fmt.Fprintln(os.Stdout)
}

func printSeasonal(data *analytics.SavingsData) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Season\tMonths\tAvg Peak $/MWh\tRisk")
	for _, s := range data.Seasonal {
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n",
			s.Season,
			s.Months,
			formatDecimal(s.AvgPeak, 2),
			s.RiskLevel,
		)
	}
	writer.Flush()
	fmt.Fprintln(os.Stdout)
}

func printSummary(data *analytics.SavingsData) {
	fmt.Fprintf(os.Stdout, "Annual avg price: $%s/MWh\n", formatDecimal(data.AnnualAvgPrice, 2))
	fmt.Fprintf(os.Stdout, "Annual peak price: $%s/MWh\n", formatDecimal(data.AnnualPeakPrice, 2))
	fmt.Fprintf(os.Stdout, "Total savings opportunity: $%s/MWh\n", formatDecimal(data.TotalPotentialSavings, 2))
	fmt.Fprintf(os.Stdout, "High-risk hours: %s\n", joinHours(data.HighRiskHours))
	fmt.Fprintf(os.Stdout, "Safe hours: %s\n", joinHours(data.SafeHours))
}

func joinHours(hours []int) string {
	if len(hours) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(hours))
	for _, h := range hours {
		parts = append(parts, fmt.Sprintf("%02d:00", h))
	}
	return strings.Join(parts, ", ")
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
