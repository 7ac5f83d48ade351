package domain

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Category is the bucket an account is classified into.
type Category string

const (
	CategoryCash       Category = "Cash"
	CategoryInvestment Category = "Investment"
	CategoryCar        Category = "Car"
	CategoryCondo      Category = "Condo"
	CategoryOther      Category = "Other"
)

// AccountRaw is an account as returned by the PocketSmith accounts endpoint.
// Only the fields the job consumes are decoded.
type AccountRaw struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	CurrencyCode   string          `json:"currency_code"`
	Type           string          `json:"type"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

// AccountRecord is a categorized account ready to be persisted.
// Balance is rounded to 2 decimal places.
type AccountRecord struct {
	Title        string
	Balance      decimal.Decimal
	Category     Category
	SnapshotDate civil.Date
}

// Key returns a value that is equal for two records iff the records are
// structurally equal. Decimals are compared by their fixed 2dp text so that
// 10.5 and 10.50 collapse.
func (r AccountRecord) Key() AccountKey {
	return AccountKey{
		Title:        r.Title,
		Balance:      r.Balance.StringFixed(2),
		Category:     r.Category,
		SnapshotDate: r.SnapshotDate,
	}
}

// AccountKey is the comparable form of an AccountRecord.
type AccountKey struct {
	Title        string
	Balance      string
	Category     Category
	SnapshotDate civil.Date
}

// CategoryTotal is the sum of balances for one category.
type CategoryTotal struct {
	Category Category
	Balance  decimal.Decimal
	Accounts int
}
