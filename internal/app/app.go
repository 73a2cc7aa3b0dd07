package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"twelvecp/internal/alerting"
	"twelvecp/internal/analytics"
	"twelvecp/internal/config"
	"twelvecp/internal/fetcher"
	"twelvecp/internal/scheduler"
	"twelvecp/internal/service"
	"twelvecp/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.PoolPriceFetcher {
	return fetcher.NewAESO(fetcher.AESOOptions{
		BaseURL:   a.Config.AESO.BaseURL,
		APIKey:    a.Config.AESO.APIKey,
		Timeout:   a.Config.AESO.RequestTimeout,
		UserAgent: a.Config.AESO.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) newAnalyzer(source analytics.ObservationSource) *analytics.Analyzer {
	return analytics.New(source, analytics.Options{
		LookbackMonths: a.Config.Analytics.LookbackMonths,
		Location:       a.Config.Location(),
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running ingestion service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required to run the ingestion service")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	analyzer := a.newAnalyzer(store)
	svc := service.New(a.Config, sched, a.newFetcher(), store, analyzer, a.newNotifier(), a.Logger)

	a.Logger.Info().Msg("starting ingestion service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("ingestion service stopped")
	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// AnalyzeOptions configure the analyze command.
type AnalyzeOptions struct {
	LookbackMonths int
}

// ExportOptions hold parameters for exporting analysis results.
type ExportOptions struct {
	LookbackMonths int
	CSVPath        string
	PNGPath        string
	MaxPoints      int
}

// BackfillOptions configure the historical ingestion job.
type BackfillOptions struct {
	From   time.Time
	To     time.Time
	DryRun bool
}

// SimulateOptions configure the savings simulation.
type SimulateOptions struct {
	FacilityMW     float64
	OperatingHours float64
	Strategy       string
	LookbackMonths int
}
