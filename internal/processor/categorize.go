package processor

import (
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/shopspring/decimal"
)

// Categorize classifies each account by its title. Precedence is cash title,
// investment title, car identifier (substring), condo identifier (exact);
// anything else is Other. Matching is case-insensitive.
func Categorize(accounts []domain.AccountRaw, rules Rules, snapshotDate civil.Date) []domain.AccountRecord {
	records := make([]domain.AccountRecord, 0, len(accounts))
	for _, acc := range accounts {
		records = append(records, domain.AccountRecord{
			Title:        acc.Title,
			Balance:      acc.CurrentBalance.RoundBank(2),
			Category:     rules.categoryOf(acc.Title),
			SnapshotDate: snapshotDate,
		})
	}
	return records
}

func (r Rules) categoryOf(title string) domain.Category {
	upper := strings.ToUpper(title)
	if _, ok := r.cashTitles[upper]; ok {
		return domain.CategoryCash
	}
	if _, ok := r.investmentTitles[upper]; ok {
		return domain.CategoryInvestment
	}
	if r.carIdentifier != "" && strings.Contains(upper, r.carIdentifier) {
		return domain.CategoryCar
	}
	if r.condoIdentifier != "" && upper == r.condoIdentifier {
		return domain.CategoryCondo
	}
	return domain.CategoryOther
}

// GroupByCategory sums balances per category, sorted by category name.
func GroupByCategory(records []domain.AccountRecord) []domain.CategoryTotal {
	byCategory := make(map[domain.Category]*domain.CategoryTotal)
	for _, rec := range records {
		total, ok := byCategory[rec.Category]
		if !ok {
			total = &domain.CategoryTotal{Category: rec.Category, Balance: decimal.Zero}
			byCategory[rec.Category] = total
		}
		total.Balance = total.Balance.Add(rec.Balance)
		total.Accounts++
	}

	totals := make([]domain.CategoryTotal, 0, len(byCategory))
	for _, t := range byCategory {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		return strings.ToUpper(string(totals[i].Category)) < strings.ToUpper(string(totals[j].Category))
	})
	return totals
}
