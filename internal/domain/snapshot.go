package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Manual estimate keys as they appear in the serialized manual_estimates column.
const (
	EstimateGroceries       = "Groceries"
	EstimateRestaurant      = "Restaurant"
	EstimateHealthInsurance = "Health Insurance"
)

// SpendingSnapshot is the mandatory spending aggregate for one run.
type SpendingSnapshot struct {
	APIMandatorySpend   decimal.Decimal
	ManualEstimates     map[string]decimal.Decimal
	GrandTotalAnnual    decimal.Decimal
	GrandTotalDaily     decimal.Decimal
	GrandTotalTwoMonths decimal.Decimal
	SnapshotDate        civil.Date
}

// RunwaySnapshot is the cash runway for one run. It is nil when the annual
// burn is not positive.
type RunwaySnapshot struct {
	CashOnHand   decimal.Decimal
	AnnualBurn   decimal.Decimal
	RunwayDays   int64
	RunwayYears  decimal.Decimal
	LastUntil    civil.Date
	SnapshotDate civil.Date
}
