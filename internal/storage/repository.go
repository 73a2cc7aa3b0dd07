package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertObservationSQL = `INSERT INTO hourly_observations (
        ts,
        pool_price,
        hour_of_day,
        month_key,
        demand_mw
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (ts) DO UPDATE
    SET
        pool_price  = EXCLUDED.pool_price,
        hour_of_day = EXCLUDED.hour_of_day,
        month_key   = EXCLUDED.month_key,
        demand_mw   = EXCLUDED.demand_mw;`

	listObservationsBetweenSQL = `SELECT
        ts,
        pool_price,
        hour_of_day,
        month_key,
        demand_mw,
        created_at
    FROM hourly_observations
    WHERE ts >= $1
      AND ts <= $2
      AND pool_price IS NOT NULL
    ORDER BY ts;`

	listRecentObservationsSQL = `SELECT
        ts,
        pool_price,
        hour_of_day,
        month_key,
        demand_mw,
        created_at
    FROM hourly_observations
    WHERE pool_price IS NOT NULL
    ORDER BY ts DESC
    LIMIT $1;`

	countObservationsSQL = `SELECT COUNT(*) FROM hourly_observations;`
)

// ObservationStore defines read/write access to hourly pool-price rows.
// ListObservationsBetween returns rows with a non-null pool price ordered
// by timestamp ascending; the upsert keys on the hour bucket, so the read
// side never yields duplicate timestamps.
type ObservationStore interface {
	UpsertObservation(ctx context.Context, obs HourlyObservation) error
	ListObservationsBetween(ctx context.Context, from, to time.Time) ([]HourlyObservation, error)
	ListRecentObservations(ctx context.Context, limit int) ([]HourlyObservation, error)
	CountObservations(ctx context.Context) (int64, error)
}

// Store is the pgx-backed observation repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertObservation persists or updates one settlement hour.
func (s *Store) UpsertObservation(ctx context.Context, obs HourlyObservation) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	price := obs.PoolPrice.String()

	var hour interface{}
	if obs.HourOfDay != nil {
		hour = *obs.HourOfDay
	}

	var monthKey interface{}
	if obs.MonthKey != nil {
		monthKey = *obs.MonthKey
	}

	var demand interface{}
	if obs.DemandMW != nil {
		demand = obs.DemandMW.String()
	}

	_, execErr := pool.Exec(ctx, upsertObservationSQL,
		obs.Timestamp,
		price,
		hour,
		monthKey,
		demand,
	)
	if execErr != nil {
		return fmt.Errorf("upsert observation: %w", execErr)
	}
	return nil
}

// ListObservationsBetween lists priced observations within an inclusive window.
func (s *Store) ListObservationsBetween(ctx context.Context, from, to time.Time) ([]HourlyObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listObservationsBetweenSQL, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list observations between: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]HourlyObservation, 0)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// ListRecentObservations lists the most recent priced hours, newest first.
func (s *Store) ListRecentObservations(ctx context.Context, limit int) ([]HourlyObservation, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentObservationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent observations: %w", queryErr)
	}
	defer rows.Close()

	observations := make([]HourlyObservation, 0, limit)
	for rows.Next() {
		obs, scanErr := scanObservation(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		observations = append(observations, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return observations, nil
}

// CountObservations counts stored hours.
func (s *Store) CountObservations(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

func scanObservation(rows pgx.Rows) (HourlyObservation, error) {
	var (
		ts        time.Time
		priceStr  string
		hour      sql.NullInt64
		monthKey  sql.NullString
		demandStr sql.NullString
		createdAt time.Time
	)

	if err := rows.Scan(
		&ts,
		&priceStr,
		&hour,
		&monthKey,
		&demandStr,
		&createdAt,
	); err != nil {
		return HourlyObservation{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return HourlyObservation{}, fmt.Errorf("parse pool price: %w", err)
	}

	obs := HourlyObservation{
		Timestamp: ts,
		PoolPrice: price,
		CreatedAt: createdAt,
	}

	if hour.Valid {
		value := int(hour.Int64)
		obs.HourOfDay = &value
	}
	if monthKey.Valid {
		key := monthKey.String
		obs.MonthKey = &key
	}
	if demandStr.Valid {
		demand, err := decimal.NewFromString(demandStr.String)
		if err != nil {
			return HourlyObservation{}, fmt.Errorf("parse demand: %w", err)
		}
		obs.DemandMW = &demand
	}

	return obs, nil
}

var _ ObservationStore = (*Store)(nil)
