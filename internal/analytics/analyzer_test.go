package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twelvecp/internal/storage"
)

type stubSource struct {
	rows []storage.HourlyObservation
	err  error
}

func (s *stubSource) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]storage.HourlyObservation, error) {
	return s.rows, s.err
}

func testAnalyzer(source ObservationSource) *Analyzer {
	return New(source, Options{}, zerolog.Nop())
}

func obsAt(ts time.Time, price string) storage.HourlyObservation {
	return storage.HourlyObservation{
		Timestamp: ts,
		PoolPrice: decimal.RequireFromString(price),
	}
}

// flatMonth generates one observation per hour of the given month, all at
// the same price.
func flatMonth(year int, month time.Month, price string) []storage.HourlyObservation {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	rows := make([]storage.HourlyObservation, 0, 744)
	for ts := start; ts.Before(end); ts = ts.Add(time.Hour) {
		rows = append(rows, obsAt(ts, price))
	}
	return rows
}

func TestFetchAndAnalyzeEmptyWindow(t *testing.T) {
	a := testAnalyzer(&stubSource{})

	err := a.FetchAndAnalyze(context.Background(), time.Now(), 12)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if a.Data() != nil {
		t.Fatal("cache should stay unset after an empty window")
	}
}

func TestFetchAndAnalyzeTransportFailureKeepsCache(t *testing.T) {
	source := &stubSource{rows: flatMonth(2025, time.January, "100")}
	a := testAnalyzer(source)

	if err := a.FetchAndAnalyze(context.Background(), time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), 12); err != nil {
		t.Fatalf("seed analysis failed: %v", err)
	}
	cached := a.Data()
	if cached == nil {
		t.Fatal("expected seeded cache")
	}

	source.err = errors.New("connection refused")
	err := a.FetchAndAnalyze(context.Background(), time.Now(), 12)
	if err == nil {
		t.Fatal("transport failure should surface an error")
	}
	if errors.Is(err, ErrNoData) {
		t.Fatal("transport failure must be distinct from the no-data condition")
	}
	if a.Data() != cached {
		t.Fatal("failed fetch must leave the prior cache untouched")
	}
}

func TestMonthlySavingsOpportunityNonNegative(t *testing.T) {
	// Intra-month hour variation: cheap nights, expensive evenings.
	rows := make([]storage.HourlyObservation, 0)
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for ts := start; ts.Month() == time.March; ts = ts.Add(time.Hour) {
		price := "30"
		if h := ts.Hour(); h >= 16 && h <= 20 {
			price = "180"
		}
		rows = append(rows, obsAt(ts, price))
	}
	rows = append(rows, flatMonth(2025, time.April, "55")...)

	a := testAnalyzer(&stubSource{rows: rows})
	if err := a.FetchAndAnalyze(context.Background(), time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), 12); err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	data := a.Data()
	if len(data.Monthly) != 2 {
		t.Fatalf("expected 2 months, got %d", len(data.Monthly))
	}
	for _, m := range data.Monthly {
		if m.SavingsOpportunity.IsNegative() {
			t.Fatalf("month %s has negative savings opportunity %s", m.MonthKey, m.SavingsOpportunity)
		}
	}

	march := data.Monthly[0]
	if march.MonthKey != "2025-03" {
		t.Fatalf("months must sort by key ascending, got %s first", march.MonthKey)
	}
	if march.PeakHour < 16 || march.PeakHour > 20 {
		t.Fatalf("march peak hour should land in the expensive band, got %d", march.PeakHour)
	}
	if !march.PeakHourPrice.Equal(decimal.NewFromInt(180)) {
		t.Fatalf("march peak hour price should be 180, got %s", march.PeakHourPrice)
	}

	april := data.Monthly[1]
	if !april.SavingsOpportunity.IsZero() {
		t.Fatalf("flat month should have zero opportunity, got %s", april.SavingsOpportunity)
	}
	if april.PeakHour != 0 {
		t.Fatalf("flat month peak should stick at the first scanned hour, got %d", april.PeakHour)
	}
	if april.MonthLabel != "Apr 25" {
		t.Fatalf("unexpected month label %q", april.MonthLabel)
	}
}

func TestAnnualAverageIsMeanOfMonthlyMeans(t *testing.T) {
	// Unequal month sizes: 10 hours at 100 in January, 2 hours at 50 in
	// February. Two-stage mean = 75; a global mean would be 1100/12.
	rows := make([]storage.HourlyObservation, 0, 12)
	jan := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		rows = append(rows, obsAt(jan.Add(time.Duration(i)*time.Hour), "100"))
	}
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		rows = append(rows, obsAt(feb.Add(time.Duration(i)*time.Hour), "50"))
	}

	a := testAnalyzer(&stubSource{rows: rows})
	if err := a.FetchAndAnalyze(context.Background(), time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), 12); err != nil {
		t.Fatalf("analysis failed: %v", err)
	}

	data := a.Data()
	if !data.AnnualAvgPrice.Equal(decimal.NewFromInt(75)) {
		t.Fatalf("annual average must be the mean of monthly means (75), got %s", data.AnnualAvgPrice)
	}

	globalMean := decimal.NewFromInt(1100).Div(decimal.NewFromInt(12))
	if data.AnnualAvgPrice.Equal(globalMean) {
		t.Fatal("annual average must not be the global mean of raw hours")
	}
}

func TestRiskScoreBuckets(t *testing.T) {
	annual := decimal.NewFromInt(100)
	cases := []struct {
		avg  string
		want int
	}{
		{"151", 90},
		{"150", 70}, // boundary is strict greater-than
		{"121", 70},
		{"120", 50},
		{"101", 50},
		{"100", 30},
		{"81", 30},
		{"80", 10},
		{"10", 10},
	}
	for _, tc := range cases {
		got := riskScore(decimal.RequireFromString(tc.avg), annual)
		if got != tc.want {
			t.Fatalf("riskScore(%s/100) = %d, want %d", tc.avg, got, tc.want)
		}
	}
}

func TestSeasonalPatternBands(t *testing.T) {
	want := map[int]string{
		0: "Off-Peak", 5: "Off-Peak",
		6: "Morning Ramp", 9: "Morning Ramp",
		10: "Midday", 15: "Midday",
		16: "Evening Peak", 20: "Evening Peak",
		21: "Late Evening", 23: "Late Evening",
	}
	for hour, label := range want {
		if got := seasonalPattern(hour); got != label {
			t.Fatalf("hour %d: got %q, want %q", hour, got, label)
		}
	}
}

func TestRiskPartitionIsCompleteAndDisjoint(t *testing.T) {
	// Spread prices so the risk profile uses several buckets.
	rows := make([]storage.HourlyObservation, 0)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for ts := start; ts.Before(start.AddDate(0, 2, 0)); ts = ts.Add(time.Hour) {
		var price string
		switch h := ts.Hour(); {
		case h >= 17 && h <= 19:
			price = "300"
		case h >= 7 && h <= 9:
			price = "150"
		case h <= 4:
			price = "20"
		default:
			price = "80"
		}
		rows = append(rows, obsAt(ts, price))
	}

	a := testAnalyzer(&stubSource{rows: rows})
	if err := a.FetchAndAnalyze(context.Background(), start.AddDate(0, 2, 0), 12); err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	data := a.Data()

	if len(data.RiskProfile) != 24 {
		t.Fatalf("risk profile must have 24 entries, got %d", len(data.RiskProfile))
	}
	for i := 1; i < len(data.RiskProfile); i++ {
		if data.RiskProfile[i].RiskScore > data.RiskProfile[i-1].RiskScore {
			t.Fatal("risk profile must be sorted by descending risk score")
		}
	}

	seen := make(map[int]int)
	for _, r := range data.RiskProfile {
		if r.RiskScore != 10 && r.RiskScore != 30 && r.RiskScore != 50 && r.RiskScore != 70 && r.RiskScore != 90 {
			t.Fatalf("hour %d has out-of-bucket risk score %d", r.Hour, r.RiskScore)
		}
		seen[r.Hour] = r.RiskScore
	}
	if len(seen) != 24 {
		t.Fatalf("risk profile must cover all 24 hours, got %d", len(seen))
	}

	covered := make(map[int]bool)
	for _, h := range data.HighRiskHours {
		if seen[h] < 70 {
			t.Fatalf("hour %d in high-risk set with score %d", h, seen[h])
		}
		covered[h] = true
	}
	for _, h := range data.SafeHours {
		if covered[h] {
			t.Fatalf("hour %d appears in both partitions", h)
		}
		if seen[h] > 30 {
			t.Fatalf("hour %d in safe set with score %d", h, seen[h])
		}
		covered[h] = true
	}
	for hour, score := range seen {
		if score == 50 {
			if covered[hour] {
				t.Fatalf("hour %d with score 50 must stay unpartitioned", hour)
			}
			covered[hour] = true
		}
	}
	if len(covered) != 24 {
		t.Fatalf("high ∪ safe ∪ score-50 must cover all hours, got %d", len(covered))
	}
}

func TestAnalysisIsDeterministic(t *testing.T) {
	rows := append(flatMonth(2025, time.January, "95"), flatMonth(2025, time.February, "42")...)
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	a := testAnalyzer(&stubSource{rows: rows})
	if err := a.FetchAndAnalyze(context.Background(), now, 12); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	first := a.Data()

	if err := a.FetchAndAnalyze(context.Background(), now, 12); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	second := a.Data()

	if !first.AnnualAvgPrice.Equal(second.AnnualAvgPrice) || !first.AnnualPeakPrice.Equal(second.AnnualPeakPrice) {
		t.Fatal("identical input must yield identical annual figures")
	}
	for i := range first.RiskProfile {
		fr, sr := first.RiskProfile[i], second.RiskProfile[i]
		if fr.Hour != sr.Hour || fr.RiskScore != sr.RiskScore || !fr.AvgPriceAtPeak.Equal(sr.AvgPriceAtPeak) {
			t.Fatalf("risk profile entry %d differs across identical runs", i)
		}
	}
}

func TestFlatMonthScenario(t *testing.T) {
	// 24 months: January 100, July 20, everything else 50, no intra-month
	// hour variation.
	rows := make([]storage.HourlyObservation, 0)
	cursor := time.Date(2023, 9, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 24; i++ {
		price := "50"
		switch cursor.Month() {
		case time.January:
			price = "100"
		case time.July:
			price = "20"
		}
		rows = append(rows, flatMonth(cursor.Year(), cursor.Month(), price)...)
		cursor = cursor.AddDate(0, 1, 0)
	}

	a := testAnalyzer(&stubSource{rows: rows})
	now := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	if err := a.FetchAndAnalyze(context.Background(), now, 24); err != nil {
		t.Fatalf("analysis failed: %v", err)
	}
	data := a.Data()

	if len(data.Monthly) != 24 {
		t.Fatalf("expected 24 months, got %d", len(data.Monthly))
	}

	// 2x100 + 2x20 + 20x50 over 24 months.
	wantAnnual := decimal.NewFromInt(1240).Div(decimal.NewFromInt(24))
	if !data.AnnualAvgPrice.Equal(wantAnnual) {
		t.Fatalf("annual avg: got %s, want %s", data.AnnualAvgPrice, wantAnnual)
	}
	if !data.AnnualPeakPrice.Equal(wantAnnual) {
		t.Fatalf("annual peak should equal annual avg for flat months, got %s", data.AnnualPeakPrice)
	}

	for _, m := range data.Monthly {
		want := decimal.NewFromInt(50)
		switch m.MonthKey[5:] {
		case "01":
			want = decimal.NewFromInt(100)
		case "07":
			want = decimal.NewFromInt(20)
		}
		if !m.PeakHourPrice.Equal(want) {
			t.Fatalf("month %s peak should equal its flat price %s, got %s", m.MonthKey, want, m.PeakHourPrice)
		}
		if !m.SavingsOpportunity.IsZero() {
			t.Fatalf("month %s should have zero savings opportunity, got %s", m.MonthKey, m.SavingsOpportunity)
		}
	}
	if !data.TotalPotentialSavings.IsZero() {
		t.Fatalf("total potential savings should be zero, got %s", data.TotalPotentialSavings)
	}

	var winter, summer SeasonalInsight
	for _, s := range data.Seasonal {
		switch s.Season {
		case SeasonWinter:
			winter = s
		case SeasonSummer:
			summer = s
		}
	}
	// Winter avg peak 62.5 vs annual peak ~51.67 is above the 1.2x band.
	if winter.RiskLevel != "High" {
		t.Fatalf("winter risk level should be High, got %q", winter.RiskLevel)
	}
	if !winter.AvgPeak.Equal(decimal.RequireFromString("62.5")) {
		t.Fatalf("winter avg peak: got %s, want 62.5", winter.AvgPeak)
	}
	if summer.RiskLevel != "Low" {
		t.Fatalf("summer risk level should be Low, got %q", summer.RiskLevel)
	}
}

type gatedSource struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	first   []storage.HourlyObservation
	rest    []storage.HourlyObservation
}

func (g *gatedSource) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]storage.HourlyObservation, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if n == 1 {
		close(g.entered)
		<-g.release
		return g.first, nil
	}
	return g.rest, nil
}

func TestStaleFetchDoesNotOverwriteNewerResult(t *testing.T) {
	source := &gatedSource{
		entered: make(chan struct{}),
		release: make(chan struct{}),
		first:   flatMonth(2025, time.January, "10"),
		rest:    flatMonth(2025, time.January, "99"),
	}
	a := testAnalyzer(source)
	now := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	done := make(chan error, 1)
	go func() {
		done <- a.FetchAndAnalyze(context.Background(), now, 12)
	}()
	<-source.entered

	// Second fetch starts after the first and completes while the first
	// is still in flight.
	if err := a.FetchAndAnalyze(context.Background(), now, 12); err != nil {
		t.Fatalf("second fetch failed: %v", err)
	}

	close(source.release)
	if err := <-done; err != nil {
		t.Fatalf("first fetch failed: %v", err)
	}

	data := a.Data()
	if !data.AnnualAvgPrice.Equal(decimal.NewFromInt(99)) {
		t.Fatalf("stale fetch overwrote newer result: annual avg %s", data.AnnualAvgPrice)
	}
}
