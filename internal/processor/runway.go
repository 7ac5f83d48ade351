package processor

import (
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/shopspring/decimal"
)

// ComputeRunway divides cash on hand by the annual burn. It returns nil when
// spending is nil or the burn is not positive. Days and years round half to
// even.
func ComputeRunway(records []domain.AccountRecord, spending *domain.SpendingSnapshot) *domain.RunwaySnapshot {
	if spending == nil || !spending.GrandTotalAnnual.IsPositive() {
		return nil
	}

	cash := decimal.Zero
	for _, rec := range records {
		if rec.Category == domain.CategoryCash {
			cash = cash.Add(rec.Balance)
		}
	}

	burn := spending.GrandTotalAnnual
	years := cash.Div(burn)
	days := cash.Mul(daysPerYear).Div(burn).RoundBank(0).IntPart()

	runway := &domain.RunwaySnapshot{
		CashOnHand:   cash,
		AnnualBurn:   burn,
		RunwayDays:   days,
		RunwayYears:  years.RoundBank(2),
		SnapshotDate: spending.SnapshotDate,
	}
	if spending.SnapshotDate.IsValid() {
		runway.LastUntil = spending.SnapshotDate.AddDays(int(days))
	}
	return runway
}
