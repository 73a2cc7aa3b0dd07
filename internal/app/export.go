package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"twelvecp/internal/analytics"
	"twelvecp/internal/storage"
)

// Export renders analysis results as CSV and/or a PNG chart. The CSV holds
// the monthly comparison table; the PNG plots the raw hourly pool price
// alongside the monthly average and peak levels.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	analyzer := a.newAnalyzer(store)
	now := nowUTC()
	if err := analyzer.FetchAndAnalyze(ctx, now, opts.LookbackMonths); err != nil {
		if errors.Is(err, analytics.ErrNoData) {
			a.Logger.Info().Msg("no price data available for export window")
			return nil
		}
		return err
	}
	data := analyzer.Data()

	if opts.CSVPath != "" {
		if err := writeMonthlyCSV(opts.CSVPath, data); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		observations, err := store.ListObservationsBetween(ctx, data.WindowFrom, data.WindowTo)
		if err != nil {
			return err
		}
		downsampled := downsampleObservations(observations, opts.MaxPoints)
		a.Logger.Info().Int("total", len(observations)).Int("plotted", len(downsampled)).Msg("rendering price chart")
		if err := writePricePNG(opts.PNGPath, downsampled, data); err != nil {
			return err
		}
	}

	return nil
}

func downsampleObservations(observations []storage.HourlyObservation, max int) []storage.HourlyObservation {
	if max <= 0 || len(observations) <= max {
		return observations
	}

	result := make([]storage.HourlyObservation, 0, max)
	step := float64(len(observations)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(observations) {
			idx = len(observations) - 1
		}
		result = append(result, observations[idx])
	}
	return result
}

func writeMonthlyCSV(path string, data *analytics.SavingsData) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"month", "avg_price", "peak_hour", "peak_hour_price", "savings_opportunity", "total_hours"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, m := range data.Monthly {
		record := []string{
			m.MonthKey,
			m.AvgPrice.String(),
			fmt.Sprintf("%02d:00", m.PeakHour),
			m.PeakHourPrice.String(),
			m.SavingsOpportunity.String(),
			strconv.Itoa(m.TotalHours),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePricePNG(path string, observations []storage.HourlyObservation, data *analytics.SavingsData) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(observations) == 0 {
		return errors.New("no observations to plot")
	}

	x := make([]time.Time, len(observations))
	price := make([]float64, len(observations))
	for i, obs := range observations {
		x[i] = obs.Timestamp
		price[i] = obs.PoolPrice.InexactFloat64()
	}

	annualAvg := data.AnnualAvgPrice.InexactFloat64()
	annualPeak := data.AnnualPeakPrice.InexactFloat64()
	avgLine := make([]float64, len(observations))
	peakLine := make([]float64, len(observations))
	for i := range observations {
		avgLine[i] = annualAvg
		peakLine[i] = annualPeak
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Pool price ($/MWh)",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Pool price",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "Annual avg",
				XValues: x,
				YValues: avgLine,
			},
			chart.TimeSeries{
				Name:    "Annual peak",
				XValues: x,
				YValues: peakLine,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
