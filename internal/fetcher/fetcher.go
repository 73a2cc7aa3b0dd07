package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one settled hour returned by the upstream market API.
type PricePoint struct {
	Begin     time.Time
	PoolPrice decimal.Decimal
}

// PoolPriceFetcher retrieves settled hourly pool prices for a date range.
type PoolPriceFetcher interface {
	FetchPoolPrices(ctx context.Context, from, to time.Time) ([]PricePoint, error)
}
