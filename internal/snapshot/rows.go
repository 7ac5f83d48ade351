package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/shopspring/decimal"
)

// DeduplicateAccounts drops records structurally equal to an earlier one,
// preserving the order of first occurrences.
func DeduplicateAccounts(records []domain.AccountRecord) []domain.AccountRecord {
	seen := make(map[domain.AccountKey]struct{}, len(records))
	unique := make([]domain.AccountRecord, 0, len(records))
	for _, rec := range records {
		key := rec.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rec)
	}
	return unique
}

// CanonicalJSON serializes a string→decimal mapping with sorted keys and
// decimal values as JSON numbers.
func CanonicalJSON(m map[string]decimal.Decimal) (string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return "", fmt.Errorf("CanonicalJSON: key %q: %w", k, err)
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteString(m[k].String())
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

// number renders d as a JSON number that always carries a fractional part,
// so schema autodetection types the column FLOAT rather than INTEGER.
func number(d decimal.Decimal) json.Number {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return json.Number(s)
}

func accountRow(rec domain.AccountRecord, date civil.Date) bq.AccountRow {
	return bq.AccountRow{
		Title:        rec.Title,
		Balance:      json.Number(rec.Balance.StringFixed(2)),
		Category:     string(rec.Category),
		SnapshotDate: date,
	}
}

func spendingRow(s *domain.SpendingSnapshot, date civil.Date) (bq.SpendingRow, error) {
	estimates, err := CanonicalJSON(s.ManualEstimates)
	if err != nil {
		return bq.SpendingRow{}, err
	}
	return bq.SpendingRow{
		APIMandatorySpend:   number(s.APIMandatorySpend),
		ManualEstimates:     estimates,
		GrandTotalAnnual:    number(s.GrandTotalAnnual),
		GrandTotalDaily:     number(s.GrandTotalDaily),
		GrandTotalTwoMonths: number(s.GrandTotalTwoMonths),
		SnapshotDate:        date,
	}, nil
}

func runwayRow(r *domain.RunwaySnapshot, date civil.Date) bq.RunwayRow {
	row := bq.RunwayRow{
		CashOnHand:   number(r.CashOnHand),
		AnnualBurn:   number(r.AnnualBurn),
		RunwayDays:   r.RunwayDays,
		RunwayYears:  number(r.RunwayYears),
		SnapshotDate: date,
	}
	if r.LastUntil.IsValid() {
		lastUntil := r.LastUntil
		row.LastUntil = &lastUntil
	}
	return row
}

// encodeRows renders rows as newline-delimited JSON, the load job format.
func encodeRows(rows []any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, row := range rows {
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
