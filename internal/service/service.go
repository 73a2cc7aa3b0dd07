package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"twelvecp/internal/alerting"
	"twelvecp/internal/analytics"
	"twelvecp/internal/config"
	"twelvecp/internal/fetcher"
	"twelvecp/internal/scheduler"
	"twelvecp/internal/storage"
)

// Service orchestrates pool-price ingestion, analysis refresh, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	prices    fetcher.PoolPriceFetcher
	store     storage.ObservationStore
	analyzer  *analytics.Analyzer
	notifier  alerting.Notifier
	logger    zerolog.Logger
	loc       *time.Location

	ingestWindow  time.Duration
	lookback      int
	priceMultiple decimal.Decimal
	channels      []string
	alertsOn      bool
	cooldown      time.Duration
	lastAlert     time.Time
}

// New constructs the ingestion service.
func New(cfg *config.Config, sched *scheduler.Scheduler, prices fetcher.PoolPriceFetcher, store storage.ObservationStore, analyzer *analytics.Analyzer, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	multiple := decimal.Zero
	if cfg.Alerting.Enabled && cfg.Alerting.PriceMultiple > 0 {
		multiple = decimal.NewFromFloat(cfg.Alerting.PriceMultiple)
	}

	return &Service{
		scheduler:     sched,
		prices:        prices,
		store:         store,
		analyzer:      analyzer,
		notifier:      notifier,
		logger:        logger.With().Str("component", "service").Logger(),
		loc:           cfg.Location(),
		ingestWindow:  cfg.AESO.IngestWindow,
		lookback:      cfg.Analytics.LookbackMonths,
		priceMultiple: multiple,
		channels:      cfg.Alerting.Channels,
		alertsOn:      cfg.Alerting.Enabled,
		cooldown:      cfg.Alerting.Cooldown,
	}
}

// Run begins the aligned ingestion loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket ingests the trailing window ending at bucket, refreshes the
// cached analysis, and raises alerts for the newest settled hour.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	points, err := s.prices.FetchPoolPrices(ctx, bucket.Add(-s.ingestWindow), bucket)
	if err != nil {
		return fmt.Errorf("fetch pool prices: %w", err)
	}

	ingested := 0
	for _, point := range points {
		if err := s.store.UpsertObservation(ctx, s.toObservation(point)); err != nil {
			s.logger.Error().Err(err).Time("hour", point.Begin).Msg("failed to upsert observation")
			continue
		}
		ingested++
	}
	s.logger.Info().Time("bucket", bucket).Int("ingested", ingested).Msg("pool prices ingested")

	if err := s.analyzer.FetchAndAnalyze(ctx, bucket, s.lookback); err != nil {
		if errors.Is(err, analytics.ErrNoData) {
			s.logger.Info().Time("bucket", bucket).Msg("no price data available for analysis window")
			return nil
		}
		return fmt.Errorf("refresh analysis: %w", err)
	}

	s.maybeAlert(ctx, points)
	return nil
}

func (s *Service) toObservation(point fetcher.PricePoint) storage.HourlyObservation {
	local := point.Begin.In(s.loc)
	hour := local.Hour()
	monthKey := local.Format("2006-01")
	return storage.HourlyObservation{
		Timestamp: point.Begin,
		PoolPrice: point.PoolPrice,
		HourOfDay: &hour,
		MonthKey:  &monthKey,
	}
}

// maybeAlert raises a notification when the newest settled hour clears
// above the alert multiple of the annual average and falls in a high-risk
// hour-of-day.
func (s *Service) maybeAlert(ctx context.Context, points []fetcher.PricePoint) {
	if !s.alertsOn || s.notifier == nil || s.priceMultiple.IsZero() || len(points) == 0 {
		return
	}

	data := s.analyzer.Data()
	if data == nil {
		return
	}

	latest := points[0]
	for _, point := range points[1:] {
		if point.Begin.After(latest.Begin) {
			latest = point
		}
	}

	threshold := data.AnnualAvgPrice.Mul(s.priceMultiple)
	if !latest.PoolPrice.GreaterThan(threshold) {
		return
	}

	hour := latest.Begin.In(s.loc).Hour()
	if !containsHour(data.HighRiskHours, hour) {
		return
	}

	now := time.Now().UTC()
	if s.cooldown > 0 && !s.lastAlert.IsZero() && now.Sub(s.lastAlert) < s.cooldown {
		s.logger.Debug().Time("hour", latest.Begin).Msg("alert suppressed by cooldown")
		return
	}

	note := alerting.Notification{
		Hour:           latest.Begin.In(s.loc),
		PoolPrice:      latest.PoolPrice,
		AnnualAvgPrice: data.AnnualAvgPrice,
		PriceMultiple:  s.priceMultiple,
		Channels:       s.channels,
	}
	for _, risk := range data.RiskProfile {
		if risk.Hour == hour {
			note.RiskScore = risk.RiskScore
			note.SeasonalPattern = risk.SeasonalPattern
			break
		}
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Time("hour", latest.Begin).Msg("failed to dispatch alert")
		return
	}
	s.lastAlert = now
}

func containsHour(hours []int, hour int) bool {
	for _, h := range hours {
		if h == hour {
			return true
		}
	}
	return false
}
