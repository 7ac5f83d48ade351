package processor

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	daysPerYear    = decimal.NewFromInt(365)
	periodsPerYear = decimal.NewFromInt(6)
)

// AggregateSpending sums the absolute amounts of transactions in a mandatory
// category, excluding groceries, then adds the manual estimates.
func AggregateSpending(transactions []domain.TransactionRaw, rules Rules, snapshotDate civil.Date) *domain.SpendingSnapshot {
	apiTotal := decimal.Zero
	for _, tx := range transactions {
		category := tx.CategoryTitle()
		if _, ok := rules.mandatory[category]; !ok {
			continue
		}
		if strings.Contains(strings.ToUpper(category), "GROCERIES") {
			continue
		}
		apiTotal = apiTotal.Add(tx.Amount.Abs())
	}

	estimates := map[string]decimal.Decimal{
		domain.EstimateGroceries:       rules.groceries,
		domain.EstimateRestaurant:      rules.restaurant,
		domain.EstimateHealthInsurance: rules.healthInsurance,
	}
	grandTotal := apiTotal
	for _, v := range estimates {
		grandTotal = grandTotal.Add(v)
	}
	if rules.rounding == RoundNearestHundred {
		grandTotal = grandTotal.RoundBank(-2)
	}

	return &domain.SpendingSnapshot{
		APIMandatorySpend:   apiTotal,
		ManualEstimates:     estimates,
		GrandTotalAnnual:    grandTotal,
		GrandTotalDaily:     grandTotal.Div(daysPerYear),
		GrandTotalTwoMonths: grandTotal.Div(periodsPerYear),
		SnapshotDate:        snapshotDate,
	}
}
