package app

import (
	"context"
	"errors"
	"time"

	"twelvecp/internal/storage"
)

// backfillChunk bounds one historical report request; the pool-price API
// rejects very large date ranges.
const backfillChunk = 30 * 24 * time.Hour

// Backfill ingests historical hourly pool prices for a date range.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	from := opts.From.UTC()
	to := opts.To.UTC()
	if !from.Before(to) {
		return errors.New("backfill range is empty; check --from/--to")
	}

	var store *storage.Store
	var closeStore func()
	var err error

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: nothing will be written")
	} else {
		store, closeStore, err = a.openStore(ctx)
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("database.dsn not configured; cannot backfill")
		}
		if closeStore != nil {
			defer closeStore()
		}
	}

	prices := a.newFetcher()
	loc := a.Config.Location()

	ingested := 0
	failed := 0
	for chunkStart := from; chunkStart.Before(to); chunkStart = chunkStart.Add(backfillChunk) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunkEnd := chunkStart.Add(backfillChunk)
		if chunkEnd.After(to) {
			chunkEnd = to
		}

		points, err := prices.FetchPoolPrices(ctx, chunkStart, chunkEnd)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("from", chunkStart).Time("to", chunkEnd).Msg("backfill chunk failed")
			continue
		}

		for _, point := range points {
			if opts.DryRun {
				ingested++
				continue
			}

			local := point.Begin.In(loc)
			hour := local.Hour()
			monthKey := local.Format("2006-01")
			obs := storage.HourlyObservation{
				Timestamp: point.Begin,
				PoolPrice: point.PoolPrice,
				HourOfDay: &hour,
				MonthKey:  &monthKey,
			}
			if err := store.UpsertObservation(ctx, obs); err != nil {
				failed++
				a.Logger.Error().Err(err).Time("hour", point.Begin).Msg("backfill upsert failed")
				continue
			}
			ingested++
		}
	}

	a.Logger.Info().Int("ingested", ingested).Int("failed", failed).Msg("backfill complete")
	if failed > 0 {
		return errors.New("some hours failed to backfill; check logs")
	}
	return nil
}
