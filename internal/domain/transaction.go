package domain

import (
	"github.com/shopspring/decimal"
)

// TransactionRaw is a transaction as returned by the PocketSmith transactions endpoint.
type TransactionRaw struct {
	ID       int64                `json:"id"`
	Payee    string               `json:"payee"`
	Date     string               `json:"date"`
	Amount   decimal.Decimal      `json:"amount"`
	Type     string               `json:"type"`
	Category *TransactionCategory `json:"category"`
}

// TransactionCategory is the nested category object of a transaction.
type TransactionCategory struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// CategoryTitle returns the category title or "Uncategorized" when the
// transaction carries no category.
func (t TransactionRaw) CategoryTitle() string {
	if t.Category == nil || t.Category.Title == "" {
		return "Uncategorized"
	}
	return t.Category.Title
}
