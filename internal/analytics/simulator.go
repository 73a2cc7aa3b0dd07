package analytics

import (
	"github.com/shopspring/decimal"
)

// TransmissionAdder is the fixed transmission charge in $/MW/h, billed on
// connected capacity for every hour of the year.
var TransmissionAdder = decimal.RequireFromString("11.73")

// HoursPerYear is the transmission billing basis. Transmission charges
// accrue for all 8760 hours regardless of operating hours.
const HoursPerYear = 8760

// StrategyType selects a peak-avoidance tier.
type StrategyType string

const (
	// StrategyFull curtails for all 12 coincident peaks.
	StrategyFull StrategyType = "full"
	// StrategyPartial curtails for roughly half the peaks.
	StrategyPartial StrategyType = "partial"
	// StrategyNone runs through every peak.
	StrategyNone StrategyType = "none"
)

type strategyPolicy struct {
	hoursAvoided          int64
	transmissionReduction decimal.Decimal
}

// Strategy tiers map to fixed policy constants, not computed values.
var strategyPolicies = map[StrategyType]strategyPolicy{
	StrategyFull:    {hoursAvoided: 12, transmissionReduction: decimal.NewFromInt(1)},
	StrategyPartial: {hoursAvoided: 6, transmissionReduction: decimal.RequireFromString("0.5")},
	StrategyNone:    {hoursAvoided: 0, transmissionReduction: decimal.Zero},
}

// ValidStrategy reports whether s names a known strategy tier.
func ValidStrategy(s StrategyType) bool {
	_, ok := strategyPolicies[s]
	return ok
}

// CostBreakdown holds annual cost components in whole currency units.
type CostBreakdown struct {
	EnergyCost       decimal.Decimal
	TransmissionCost decimal.Decimal
	Total            decimal.Decimal
}

// SavingsSummary reports the saved amount (whole units) and its share of
// the unmitigated total (two decimals). The two roundings differ, so the
// displayed components need not reconcile exactly.
type SavingsSummary struct {
	Amount     decimal.Decimal
	Percentage decimal.Decimal
}

// SavingsSimulatorResult compares running through peaks against avoiding them.
type SavingsSimulatorResult struct {
	Strategy        StrategyType
	HoursAvoided    int
	WithoutStrategy CostBreakdown
	WithStrategy    CostBreakdown
	Savings         SavingsSummary
}

// CalculateSavings runs the what-if cost simulation against the cached
// aggregate. Returns nil when no analysis has completed yet or the strategy
// is unknown; it never fetches. Energy cost scales with operating hours,
// transmission cost with the full 8760-hour year.
func (a *Analyzer) CalculateSavings(facilityMW, annualOperatingHours decimal.Decimal, strategy StrategyType) *SavingsSimulatorResult {
	data := a.Data()
	if data == nil {
		return nil
	}
	policy, ok := strategyPolicies[strategy]
	if !ok {
		return nil
	}

	energyWithout := facilityMW.Mul(annualOperatingHours).Mul(data.AnnualAvgPrice)
	transmissionWithout := facilityMW.Mul(TransmissionAdder).Mul(decimal.NewFromInt(HoursPerYear))

	energySavedPerHour := facilityMW.Mul(data.AnnualPeakPrice.Sub(data.AnnualAvgPrice))
	totalEnergySavings := energySavedPerHour.Mul(decimal.NewFromInt(policy.hoursAvoided))
	transmissionSavings := transmissionWithout.Mul(policy.transmissionReduction)

	energyWith := energyWithout.Sub(totalEnergySavings)
	transmissionWith := transmissionWithout.Sub(transmissionSavings)

	amount := totalEnergySavings.Add(transmissionSavings)
	base := energyWithout.Add(transmissionWithout)
	percentage := decimal.Zero
	if !base.IsZero() {
		percentage = amount.Div(base).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return &SavingsSimulatorResult{
		Strategy:     strategy,
		HoursAvoided: int(policy.hoursAvoided),
		WithoutStrategy: CostBreakdown{
			EnergyCost:       energyWithout.Round(0),
			TransmissionCost: transmissionWithout.Round(0),
			Total:            energyWithout.Add(transmissionWithout).Round(0),
		},
		WithStrategy: CostBreakdown{
			EnergyCost:       energyWith.Round(0),
			TransmissionCost: transmissionWith.Round(0),
			Total:            energyWith.Add(transmissionWith).Round(0),
		},
		Savings: SavingsSummary{
			Amount:     amount.Round(0),
			Percentage: percentage,
		},
	}
}
