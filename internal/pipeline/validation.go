package pipeline

import (
	"sort"

	"github.com/dvloznov/finance-runway/internal/domain"
)

// UnmatchedCategories returns the configured mandatory categories that no
// transaction carries, sorted. A non-empty result usually means a category
// was renamed in the source or misspelled in the rules.
func UnmatchedCategories(configured []string, transactions []domain.TransactionRaw) []string {
	seen := make(map[string]bool, len(transactions))
	for _, tx := range transactions {
		seen[tx.CategoryTitle()] = true
	}

	var missing []string
	for _, c := range configured {
		if !seen[c] {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}
