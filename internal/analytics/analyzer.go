package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twelvecp/internal/storage"
)

var (
	// ErrNoData indicates the query succeeded but the window holds no
	// priced hours. Distinct from a transport failure; callers should
	// surface it as an informational notice, not an error.
	ErrNoData = errors.New("analytics: no price data in window")
)

// DefaultLookbackMonths is the standard 12CP analysis window.
const DefaultLookbackMonths = 12

var (
	ratioExtreme  = decimal.RequireFromString("1.5")
	ratioElevated = decimal.RequireFromString("1.2")
	ratioReduced  = decimal.RequireFromString("0.8")
)

// ObservationSource supplies the hourly rows an analysis run consumes.
type ObservationSource interface {
	ListObservationsBetween(ctx context.Context, from, to time.Time) ([]storage.HourlyObservation, error)
}

// Options tune analyzer behaviour.
type Options struct {
	// LookbackMonths is used when FetchAndAnalyze is called with a
	// non-positive override. Defaults to DefaultLookbackMonths.
	LookbackMonths int
	// Location is the grid calendar used for month and hour bucketing.
	// Peak-hour patterns are calendar-local, so this should be the
	// market's timezone, not UTC. Defaults to time.UTC.
	Location *time.Location
}

// Analyzer owns the cached result of the last successful analysis run.
// The cache is replaced atomically as one object; a failed run leaves a
// prior result untouched.
type Analyzer struct {
	source   ObservationSource
	loc      *time.Location
	lookback int
	logger   zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	applied uint64
	data    *SavingsData
}

// New constructs an Analyzer over the given observation source.
func New(source ObservationSource, opts Options, logger zerolog.Logger) *Analyzer {
	lookback := opts.LookbackMonths
	if lookback <= 0 {
		lookback = DefaultLookbackMonths
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{
		source:   source,
		loc:      loc,
		lookback: lookback,
		logger:   logger.With().Str("component", "analyzer").Logger(),
	}
}

// Data returns the cached aggregate from the last successful run, or nil
// when no run has completed yet.
func (a *Analyzer) Data() *SavingsData {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data
}

// FetchAndAnalyze pulls the look-back window ending at now, recomputes the
// full aggregate, and replaces the cache. A non-positive lookbackMonths
// falls back to the configured default. Returns ErrNoData when the window
// holds no rows; any other error is a transport failure. The cache is only
// written on success, and a fetch that was overtaken by a later completed
// run discards its result rather than overwriting the newer one.
func (a *Analyzer) FetchAndAnalyze(ctx context.Context, now time.Time, lookbackMonths int) error {
	if lookbackMonths <= 0 {
		lookbackMonths = a.lookback
	}
	from := now.AddDate(0, -lookbackMonths, 0)

	a.mu.Lock()
	a.seq++
	seq := a.seq
	a.mu.Unlock()

	rows, err := a.source.ListObservationsBetween(ctx, from, now)
	if err != nil {
		return fmt.Errorf("query observations: %w", err)
	}
	if len(rows) == 0 {
		return ErrNoData
	}

	data := a.analyze(rows, from, now)

	a.mu.Lock()
	defer a.mu.Unlock()
	if seq <= a.applied {
		a.logger.Debug().Uint64("seq", seq).Uint64("applied", a.applied).
			Msg("discarding stale analysis result")
		return nil
	}
	a.applied = seq
	a.data = data

	a.logger.Info().
		Int("observations", data.TotalObservations).
		Int("months", len(data.Monthly)).
		Str("annual_avg", data.AnnualAvgPrice.StringFixed(2)).
		Str("annual_peak", data.AnnualPeakPrice.StringFixed(2)).
		Msg("analysis cached")
	return nil
}

type monthBucket struct {
	sum       decimal.Decimal
	count     int
	hourSum   [24]decimal.Decimal
	hourCount [24]int
}

func (a *Analyzer) analyze(rows []storage.HourlyObservation, from, to time.Time) *SavingsData {
	byMonth := make(map[string]*monthBucket)
	var hourSum [24]decimal.Decimal
	var hourCount [24]int

	for _, obs := range rows {
		key := obs.Timestamp.In(a.loc).Format("2006-01")
		bucket, ok := byMonth[key]
		if !ok {
			bucket = &monthBucket{}
			byMonth[key] = bucket
		}

		hour := obs.Hour(a.loc)
		if hour < 0 || hour > 23 {
			continue
		}

		bucket.sum = bucket.sum.Add(obs.PoolPrice)
		bucket.count++
		bucket.hourSum[hour] = bucket.hourSum[hour].Add(obs.PoolPrice)
		bucket.hourCount[hour]++

		hourSum[hour] = hourSum[hour].Add(obs.PoolPrice)
		hourCount[hour]++
	}

	keys := make([]string, 0, len(byMonth))
	for key := range byMonth {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	monthly := make([]MonthlyPriceComparison, 0, len(keys))
	for _, key := range keys {
		bucket := byMonth[key]
		monthly = append(monthly, summariseMonth(key, bucket))
	}

	annualAvg := meanOf(monthly, func(m MonthlyPriceComparison) decimal.Decimal { return m.AvgPrice })
	annualPeak := meanOf(monthly, func(m MonthlyPriceComparison) decimal.Decimal { return m.PeakHourPrice })

	risks := buildRiskProfile(hourSum, hourCount, annualAvg)
	highRisk, safe := partitionHours(risks)
	seasonal := buildSeasonalInsights(monthly, annualPeak)

	totalSavings := decimal.Zero
	for _, m := range monthly {
		totalSavings = totalSavings.Add(m.SavingsOpportunity)
	}

	return &SavingsData{
		Monthly:               monthly,
		RiskProfile:           risks,
		HighRiskHours:         highRisk,
		SafeHours:             safe,
		Seasonal:              seasonal,
		AnnualAvgPrice:        annualAvg,
		AnnualPeakPrice:       annualPeak,
		TotalPotentialSavings: totalSavings,
		WindowFrom:            from,
		WindowTo:              to,
		TotalObservations:     len(rows),
	}
}

func summariseMonth(key string, bucket *monthBucket) MonthlyPriceComparison {
	avg := decimal.Zero
	if bucket.count > 0 {
		avg = bucket.sum.Div(decimal.NewFromInt(int64(bucket.count)))
	}

	// Hour 17 is the fallback peak hour when no bucket beats a zero mean.
	peakHour := 17
	peakPrice := decimal.Zero
	for hour := 0; hour < 24; hour++ {
		if bucket.hourCount[hour] == 0 {
			continue
		}
		mean := bucket.hourSum[hour].Div(decimal.NewFromInt(int64(bucket.hourCount[hour])))
		if mean.GreaterThan(peakPrice) {
			peakPrice = mean
			peakHour = hour
		}
	}

	return MonthlyPriceComparison{
		MonthKey:           key,
		MonthLabel:         monthLabel(key),
		AvgPrice:           avg,
		PeakHourPrice:      peakPrice,
		PeakHour:           peakHour,
		SavingsOpportunity: peakPrice.Sub(avg),
		TotalHours:         bucket.count,
	}
}

func monthLabel(key string) string {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return key
	}
	return t.Format("Jan 06")
}

// meanOf averages a projected value across months. Annual figures are a
// mean of monthly means, not a mean over raw hours; months with fewer
// observed hours weigh the same as full ones.
func meanOf(monthly []MonthlyPriceComparison, pick func(MonthlyPriceComparison) decimal.Decimal) decimal.Decimal {
	if len(monthly) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, m := range monthly {
		sum = sum.Add(pick(m))
	}
	return sum.Div(decimal.NewFromInt(int64(len(monthly))))
}

func buildRiskProfile(hourSum [24]decimal.Decimal, hourCount [24]int, annualAvg decimal.Decimal) []PeakHourRisk {
	risks := make([]PeakHourRisk, 0, 24)
	for hour := 0; hour < 24; hour++ {
		avg := decimal.Zero
		if hourCount[hour] > 0 {
			avg = hourSum[hour].Div(decimal.NewFromInt(int64(hourCount[hour])))
		}
		risks = append(risks, PeakHourRisk{
			Hour:            hour,
			Occurrences:     hourCount[hour],
			AvgPriceAtPeak:  avg,
			RiskScore:       riskScore(avg, annualAvg),
			SeasonalPattern: seasonalPattern(hour),
		})
	}

	sort.SliceStable(risks, func(i, j int) bool {
		return risks[i].RiskScore > risks[j].RiskScore
	})
	return risks
}

// riskScore buckets an hour's average price against the annual average.
// Thresholds are strict greater-than and checked in descending order.
func riskScore(avgAtHour, annualAvg decimal.Decimal) int {
	switch {
	case avgAtHour.GreaterThan(annualAvg.Mul(ratioExtreme)):
		return 90
	case avgAtHour.GreaterThan(annualAvg.Mul(ratioElevated)):
		return 70
	case avgAtHour.GreaterThan(annualAvg):
		return 50
	case avgAtHour.GreaterThan(annualAvg.Mul(ratioReduced)):
		return 30
	default:
		return 10
	}
}

// seasonalPattern labels an hour-of-day band. Hours 21-23 fall through to
// Late Evening; hour 20 still counts as Evening Peak.
func seasonalPattern(hour int) string {
	switch {
	case hour >= 6 && hour <= 9:
		return "Morning Ramp"
	case hour >= 16 && hour <= 20:
		return "Evening Peak"
	case hour >= 0 && hour <= 5:
		return "Off-Peak"
	case hour >= 10 && hour <= 15:
		return "Midday"
	default:
		return "Late Evening"
	}
}

// partitionHours splits the risk-sorted profile into high-risk (score >= 70)
// and safe (score <= 30) hours. Both lists keep the risk-sorted order.
func partitionHours(risks []PeakHourRisk) (highRisk, safe []int) {
	highRisk = make([]int, 0, len(risks))
	safe = make([]int, 0, len(risks))
	for _, r := range risks {
		switch {
		case r.RiskScore >= 70:
			highRisk = append(highRisk, r.Hour)
		case r.RiskScore <= 30:
			safe = append(safe, r.Hour)
		}
	}
	return highRisk, safe
}

const (
	SeasonWinter   = "Winter"
	SeasonSummer   = "Summer"
	SeasonShoulder = "Shoulder"
)

func seasonOf(monthKey string) string {
	if len(monthKey) < 7 {
		return SeasonShoulder
	}
	switch monthKey[5:7] {
	case "01", "02", "11", "12":
		return SeasonWinter
	case "06", "07", "08":
		return SeasonSummer
	default:
		return SeasonShoulder
	}
}

func buildSeasonalInsights(monthly []MonthlyPriceComparison, annualPeak decimal.Decimal) []SeasonalInsight {
	insights := make([]SeasonalInsight, 0, 3)
	for _, season := range []string{SeasonWinter, SeasonSummer, SeasonShoulder} {
		sum := decimal.Zero
		count := 0
		for _, m := range monthly {
			if seasonOf(m.MonthKey) != season {
				continue
			}
			sum = sum.Add(m.PeakHourPrice)
			count++
		}

		avgPeak := decimal.Zero
		if count > 0 {
			avgPeak = sum.Div(decimal.NewFromInt(int64(count)))
		}

		insights = append(insights, SeasonalInsight{
			Season:    season,
			Months:    count,
			AvgPeak:   avgPeak,
			RiskLevel: seasonalRiskLevel(avgPeak, annualPeak),
		})
	}
	return insights
}

func seasonalRiskLevel(avgPeak, annualPeak decimal.Decimal) string {
	switch {
	case avgPeak.GreaterThan(annualPeak.Mul(ratioElevated)):
		return "High"
	case avgPeak.GreaterThan(annualPeak):
		return "Moderate"
	default:
		return "Low"
	}
}
