package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// HourlyObservation is one persisted hour of Alberta pool-price data.
// Timestamp is the start of the settlement hour and is unique per row.
type HourlyObservation struct {
	Timestamp time.Time
	PoolPrice decimal.Decimal
	HourOfDay *int
	MonthKey  *string
	DemandMW  *decimal.Decimal
	CreatedAt time.Time
}

// Hour returns the hour-of-day of the observation, preferring the
// upstream-provided value and deriving it from the timestamp in loc otherwise.
func (o HourlyObservation) Hour(loc *time.Location) int {
	if o.HourOfDay != nil {
		return *o.HourOfDay
	}
	return o.Timestamp.In(loc).Hour()
}
