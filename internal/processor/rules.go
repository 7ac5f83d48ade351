package processor

import (
	"strings"

	"github.com/dvloznov/finance-runway/internal/config"
	"github.com/shopspring/decimal"
)

// RoundingMode selects how the grand annual total is rounded.
type RoundingMode string

const (
	RoundNone           RoundingMode = RoundingMode(config.RoundingNone)
	RoundNearestHundred RoundingMode = RoundingMode(config.RoundingNearestHundred)
)

// Rules is the normalized, read-only form of config.Rules used by the
// transform functions. Titles and identifiers are upper-cased once.
type Rules struct {
	cashTitles       map[string]struct{}
	investmentTitles map[string]struct{}
	carIdentifier    string
	condoIdentifier  string
	mandatory        map[string]struct{}
	groceries        decimal.Decimal
	restaurant       decimal.Decimal
	healthInsurance  decimal.Decimal
	rounding         RoundingMode
}

// NewRules normalizes a configuration blob.
func NewRules(cfg config.Rules) Rules {
	r := Rules{
		cashTitles:       upperSet(cfg.CashTitles),
		investmentTitles: upperSet(cfg.InvestmentTitles),
		carIdentifier:    strings.ToUpper(strings.TrimSpace(cfg.CarIdentifier)),
		condoIdentifier:  strings.ToUpper(strings.TrimSpace(cfg.CondoIdentifier)),
		mandatory:        make(map[string]struct{}, len(cfg.APICalculatedCategories)),
		groceries:        decimal.NewFromFloat(cfg.GroceriesEstimate),
		restaurant:       decimal.NewFromFloat(cfg.RestaurantEstimate),
		healthInsurance:  decimal.NewFromFloat(cfg.HealthInsuranceEstimate),
		rounding:         RoundingMode(cfg.GrandTotalRounding),
	}
	// Mandatory categories match exactly, as the API returns them.
	for _, c := range cfg.APICalculatedCategories {
		r.mandatory[c] = struct{}{}
	}
	if r.rounding == "" {
		r.rounding = RoundNone
	}
	return r
}

// WithRounding returns a copy of r using mode for the grand total.
func (r Rules) WithRounding(mode RoundingMode) Rules {
	r.rounding = mode
	return r
}

// Rounding reports the configured rounding mode.
func (r Rules) Rounding() RoundingMode {
	return r.rounding
}

func upperSet(titles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
