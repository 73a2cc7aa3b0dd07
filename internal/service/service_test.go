package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twelvecp/internal/alerting"
	"twelvecp/internal/analytics"
	"twelvecp/internal/config"
	"twelvecp/internal/fetcher"
	"twelvecp/internal/storage"
)

type stubFetcher struct {
	points []fetcher.PricePoint
	err    error
}

func (s *stubFetcher) FetchPoolPrices(ctx context.Context, from, to time.Time) ([]fetcher.PricePoint, error) {
	return s.points, s.err
}

type memStore struct {
	mu       sync.Mutex
	rows     map[time.Time]storage.HourlyObservation
	failList bool
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[time.Time]storage.HourlyObservation)}
}

func (m *memStore) UpsertObservation(ctx context.Context, obs storage.HourlyObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[obs.Timestamp.UTC()] = obs
	return nil
}

func (m *memStore) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]storage.HourlyObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList {
		return nil, errors.New("connection reset")
	}
	out := make([]storage.HourlyObservation, 0)
	for ts, obs := range m.rows {
		if !ts.Before(from.UTC()) && !ts.After(to.UTC()) {
			out = append(out, obs)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *memStore) ListRecentObservations(ctx context.Context, limit int) ([]storage.HourlyObservation, error) {
	return nil, nil
}

func (m *memStore) CountObservations(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.rows)), nil
}

type recordingNotifier struct {
	notes []alerting.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, note alerting.Notification) error {
	r.notes = append(r.notes, note)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Analytics: config.AnalyticsConfig{LookbackMonths: 12, Timezone: "UTC"},
		AESO:      config.AESOConfig{IngestWindow: 48 * time.Hour},
		Alerting: config.AlertingConfig{
			Enabled:       true,
			PriceMultiple: 2.0,
			Channels:      []string{"telegram"},
		},
	}
}

// januaryPoints generates settled hours from Jan 1 through Jan 31 18:00,
// flat at 40 with a 200 evening ramp over hours 17-19.
func januaryPoints() []fetcher.PricePoint {
	points := make([]fetcher.PricePoint, 0)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 18, 0, 0, 0, time.UTC)
	for ts := start; !ts.After(end); ts = ts.Add(time.Hour) {
		price := decimal.NewFromInt(40)
		if h := ts.Hour(); h >= 17 && h <= 19 {
			price = decimal.NewFromInt(200)
		}
		points = append(points, fetcher.PricePoint{Begin: ts, PoolPrice: price})
	}
	return points
}

func TestProcessBucketIngestsAndAlerts(t *testing.T) {
	cfg := testConfig()
	store := newMemStore()
	analyzer := analytics.New(store, analytics.Options{}, zerolog.Nop())
	notifier := &recordingNotifier{}
	points := januaryPoints()

	svc := New(cfg, nil, &stubFetcher{points: points}, store, analyzer, notifier, zerolog.Nop())

	bucket := time.Date(2025, 1, 31, 19, 0, 0, 0, time.UTC)
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("process bucket failed: %v", err)
	}

	count, _ := store.CountObservations(context.Background())
	if count != int64(len(points)) {
		t.Fatalf("expected %d rows ingested, got %d", len(points), count)
	}

	data := analyzer.Data()
	if data == nil {
		t.Fatal("analysis should be cached after ingestion")
	}
	if data.TotalObservations != len(points) {
		t.Fatalf("analysis should cover all ingested rows, got %d", data.TotalObservations)
	}

	// The newest settled hour is 18:00 at 200, above 2x the annual
	// average and inside the high-risk evening band.
	if len(notifier.notes) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(notifier.notes))
	}
	note := notifier.notes[0]
	if note.RiskScore != 90 {
		t.Fatalf("alert risk score should be 90, got %d", note.RiskScore)
	}
	if note.SeasonalPattern != "Evening Peak" {
		t.Fatalf("alert pattern should be Evening Peak, got %q", note.SeasonalPattern)
	}
}

func TestProcessBucketNoDataIsHandled(t *testing.T) {
	cfg := testConfig()
	store := newMemStore()
	analyzer := analytics.New(store, analytics.Options{}, zerolog.Nop())
	notifier := &recordingNotifier{}

	svc := New(cfg, nil, &stubFetcher{}, store, analyzer, notifier, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now().UTC()); err != nil {
		t.Fatalf("empty window is a handled condition, got error: %v", err)
	}
	if analyzer.Data() != nil {
		t.Fatal("cache should stay unset with no data")
	}
	if len(notifier.notes) != 0 {
		t.Fatal("no alert should fire without data")
	}
}

func TestProcessBucketSurfacesTransportFailure(t *testing.T) {
	cfg := testConfig()
	store := newMemStore()
	store.failList = true
	analyzer := analytics.New(store, analytics.Options{}, zerolog.Nop())

	svc := New(cfg, nil, &stubFetcher{points: januaryPoints()}, store, analyzer, nil, zerolog.Nop())

	if err := svc.ProcessBucket(context.Background(), time.Now().UTC()); err == nil {
		t.Fatal("store failure must surface as an error")
	}
	if analyzer.Data() != nil {
		t.Fatal("cache must stay unset after a transport failure")
	}
}
