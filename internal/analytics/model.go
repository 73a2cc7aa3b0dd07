package analytics

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyPriceComparison compares a month's flat average price against its
// most expensive hour-of-day.
type MonthlyPriceComparison struct {
	MonthKey           string
	MonthLabel         string
	AvgPrice           decimal.Decimal
	PeakHourPrice      decimal.Decimal
	PeakHour           int
	SavingsOpportunity decimal.Decimal
	TotalHours         int
}

// PeakHourRisk scores one hour-of-day by how far its historical average
// price runs above the annual average.
type PeakHourRisk struct {
	Hour            int
	Occurrences     int
	AvgPriceAtPeak  decimal.Decimal
	RiskScore       int
	SeasonalPattern string
}

// SeasonalInsight aggregates monthly peak prices for a fixed season group.
type SeasonalInsight struct {
	Season    string
	Months    int
	AvgPeak   decimal.Decimal
	RiskLevel string
}

// SavingsData is the full result of one analysis run. It is immutable once
// computed; a new run replaces the whole aggregate.
type SavingsData struct {
	Monthly []MonthlyPriceComparison

	// RiskProfile holds one entry per hour-of-day, sorted by descending
	// risk score. HighRiskHours and SafeHours inherit that order.
	RiskProfile   []PeakHourRisk
	HighRiskHours []int
	SafeHours     []int

	Seasonal []SeasonalInsight

	AnnualAvgPrice        decimal.Decimal
	AnnualPeakPrice       decimal.Decimal
	TotalPotentialSavings decimal.Decimal

	WindowFrom        time.Time
	WindowTo          time.Time
	TotalObservations int
}
