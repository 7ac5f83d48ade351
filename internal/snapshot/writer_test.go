package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/config"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	snapshotDay = civil.Date{Year: 2025, Month: 12, Day: 16}
	testTables  = Tables{Accounts: "accounts_raw", Spending: "mandatory_spending", Runway: "runway_info"}
)

// MockWarehouse records every call and delegates to the optional funcs.
type MockWarehouse struct {
	DeleteSnapshotFunc func(ctx context.Context, table string, date civil.Date) error
	LoadFunc           func(ctx context.Context, req bq.LoadRequest) error

	Calls   []string
	Deletes []civil.Date
	Loads   []bq.LoadRequest
}

func (m *MockWarehouse) DeleteSnapshot(ctx context.Context, table string, date civil.Date) error {
	m.Calls = append(m.Calls, "delete:"+table)
	m.Deletes = append(m.Deletes, date)
	if m.DeleteSnapshotFunc != nil {
		return m.DeleteSnapshotFunc(ctx, table, date)
	}
	return nil
}

func (m *MockWarehouse) Load(ctx context.Context, req bq.LoadRequest) error {
	m.Calls = append(m.Calls, "load:"+req.Table)
	m.Loads = append(m.Loads, req)
	if m.LoadFunc != nil {
		return m.LoadFunc(ctx, req)
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock() time.Time {
	return time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)
}

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var rows []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, sc.Err())
	return rows
}

func accounts() []domain.AccountRecord {
	return []domain.AccountRecord{
		{Title: "Checking", Balance: dec("1000"), Category: domain.CategoryCash, SnapshotDate: snapshotDay},
		{Title: "401k", Balance: dec("20000"), Category: domain.CategoryInvestment, SnapshotDate: snapshotDay},
		{Title: "Honda Civic", Balance: dec("-30000"), Category: domain.CategoryCar, SnapshotDate: snapshotDay},
	}
}

func TestWriteAccounts_DeleteThenLoad(t *testing.T) {
	wh := &MockWarehouse{}
	w := NewWriter(wh, testTables)

	result, err := w.WriteAccounts(context.Background(), accounts())
	require.NoError(t, err)

	assert.Equal(t, []string{"delete:accounts_raw", "load:accounts_raw"}, wh.Calls)
	assert.Equal(t, []civil.Date{snapshotDay}, wh.Deletes)
	require.Len(t, wh.Loads, 1)
	assert.Equal(t, 3, wh.Loads[0].Rows)
	assert.Equal(t, snapshotDay, wh.Loads[0].SnapshotDate)
	assert.Equal(t, WriteResult{Table: "accounts_raw", SnapshotDate: snapshotDay, RowsLoaded: 3}, result)

	rows := decodeLines(t, wh.Loads[0].Data)
	require.Len(t, rows, 3)
	want := map[string]any{
		"title":         "Checking",
		"balance":       1000.0,
		"category":      "Cash",
		"snapshot_date": "2025-12-16",
	}
	if diff := cmp.Diff(want, rows[0]); diff != "" {
		t.Errorf("first row mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteAccounts_Idempotent(t *testing.T) {
	wh := &MockWarehouse{}
	w := NewWriter(wh, testTables)

	_, err := w.WriteAccounts(context.Background(), accounts())
	require.NoError(t, err)
	_, err = w.WriteAccounts(context.Background(), accounts())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"delete:accounts_raw", "load:accounts_raw",
		"delete:accounts_raw", "load:accounts_raw",
	}, wh.Calls)
	require.Len(t, wh.Loads, 2)
	assert.Equal(t, wh.Deletes[0], wh.Deletes[1])
	assert.Equal(t, wh.Loads[0].Rows, wh.Loads[1].Rows)
	assert.Equal(t, wh.Loads[0].Data, wh.Loads[1].Data)
}

func TestWriteAccounts_Deduplicates(t *testing.T) {
	base := accounts()
	records := []domain.AccountRecord{
		base[0],
		base[1],
		base[0],
		{Title: "Checking", Balance: dec("1000.00"), Category: domain.CategoryCash, SnapshotDate: snapshotDay},
		base[2],
		base[1],
	}
	wh := &MockWarehouse{}

	result, err := NewWriter(wh, testTables).WriteAccounts(context.Background(), records)
	require.NoError(t, err)

	assert.Equal(t, 3, result.DuplicatesRemoved)
	assert.Equal(t, 3, result.RowsLoaded)
	rows := decodeLines(t, wh.Loads[0].Data)
	require.Len(t, rows, 3)
	assert.Equal(t, "Checking", rows[0]["title"])
	assert.Equal(t, "401k", rows[1]["title"])
	assert.Equal(t, "Honda Civic", rows[2]["title"])
}

func TestWriteAccounts_LogsToContextLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))
	base := accounts()
	w := NewWriter(&MockWarehouse{}, testTables)

	_, err := w.WriteAccounts(ctx, []domain.AccountRecord{base[0], base[0]})
	require.NoError(t, err)
	_, err = w.WriteRunway(ctx, nil)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Removed duplicate accounts from payload")
	assert.Contains(t, out, `"duplicates":1`)
	assert.Contains(t, out, "No runway computed, skipping write")
}

func TestWriteAccounts_NearDuplicatesKept(t *testing.T) {
	records := []domain.AccountRecord{
		{Title: "Checking", Balance: dec("1000"), Category: domain.CategoryCash, SnapshotDate: snapshotDay},
		{Title: "Checking", Balance: dec("1000.01"), Category: domain.CategoryCash, SnapshotDate: snapshotDay},
	}
	assert.Len(t, DeduplicateAccounts(records), 2)
}

func TestWriteAccounts_EmptyIsNoop(t *testing.T) {
	wh := &MockWarehouse{}
	w := NewWriter(wh, testTables)

	result, err := w.WriteAccounts(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Skipped)

	_, err = w.WriteAccounts(context.Background(), []domain.AccountRecord{})
	require.NoError(t, err)

	assert.Empty(t, wh.Calls)
}

func TestWriteAccounts_DefaultsMissingDate(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))
	wh := &MockWarehouse{}
	w := NewWriter(wh, testTables, WithClock(fixedClock))

	records := []domain.AccountRecord{{Title: "Checking", Balance: dec("1"), Category: domain.CategoryCash}}
	result, err := w.WriteAccounts(ctx, records)
	require.NoError(t, err)

	today := civil.Date{Year: 2026, Month: 1, Day: 2}
	assert.Equal(t, today, result.SnapshotDate)
	assert.Equal(t, []civil.Date{today}, wh.Deletes)
	rows := decodeLines(t, wh.Loads[0].Data)
	assert.Equal(t, "2026-01-02", rows[0]["snapshot_date"])
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "Snapshot date missing")
}

func TestWriteAccounts_TableNotFoundProceeds(t *testing.T) {
	wh := &MockWarehouse{
		DeleteSnapshotFunc: func(ctx context.Context, table string, date civil.Date) error {
			return errors.Join(errors.New("404 notFound"), bq.ErrTableNotFound)
		},
	}

	result, err := NewWriter(wh, testTables).WriteAccounts(context.Background(), accounts())
	require.NoError(t, err)
	assert.Equal(t, 3, result.RowsLoaded)
	assert.Equal(t, []string{"delete:accounts_raw", "load:accounts_raw"}, wh.Calls)
}

func TestWriteAccounts_DeleteFailureAbortsBeforeLoad(t *testing.T) {
	boom := errors.New("permission denied")
	wh := &MockWarehouse{
		DeleteSnapshotFunc: func(ctx context.Context, table string, date civil.Date) error {
			return boom
		},
	}

	_, err := NewWriter(wh, testTables).WriteAccounts(context.Background(), accounts())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrDeleteFailed)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "accounts_raw")
	assert.Contains(t, err.Error(), "2025-12-16")
	assert.Equal(t, []string{"delete:accounts_raw"}, wh.Calls)
}

func TestWriteAccounts_LoadFailurePropagates(t *testing.T) {
	boom := errors.New("quota exceeded")
	wh := &MockWarehouse{
		LoadFunc: func(ctx context.Context, req bq.LoadRequest) error { return boom },
	}

	result, err := NewWriter(wh, testTables).WriteAccounts(context.Background(), accounts())
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, result.RowsLoaded)
}

func TestWriteSpending_SerializesEstimates(t *testing.T) {
	estimates := map[string]decimal.Decimal{
		domain.EstimateRestaurant:      dec("200"),
		domain.EstimateGroceries:       dec("500"),
		domain.EstimateHealthInsurance: dec("300.5"),
	}
	spending := &domain.SpendingSnapshot{
		APIMandatorySpend:   dec("2180"),
		ManualEstimates:     estimates,
		GrandTotalAnnual:    dec("3180.5"),
		GrandTotalDaily:     dec("8.71"),
		GrandTotalTwoMonths: dec("530.08"),
		SnapshotDate:        snapshotDay,
	}
	wh := &MockWarehouse{}

	result, err := NewWriter(wh, testTables).WriteSpending(context.Background(), spending)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RowsLoaded)
	assert.Equal(t, []string{"delete:mandatory_spending", "load:mandatory_spending"}, wh.Calls)
	rows := decodeLines(t, wh.Loads[0].Data)
	require.Len(t, rows, 1)

	want, err := CanonicalJSON(estimates)
	require.NoError(t, err)
	assert.Equal(t, `{"Groceries":500,"Health Insurance":300.5,"Restaurant":200}`, want)
	assert.Equal(t, want, rows[0]["manual_estimates"])
	assert.Equal(t, 2180.0, rows[0]["api_mandatory_spend"])
	assert.Equal(t, 3180.5, rows[0]["grand_total_annual"])
	assert.Equal(t, "2025-12-16", rows[0]["snapshot_date"])

	// Every column is a scalar.
	for k, v := range rows[0] {
		switch v.(type) {
		case map[string]any, []any:
			t.Errorf("column %s is not a scalar: %#v", k, v)
		}
	}
}

func TestWriteSpending_NilIsNoop(t *testing.T) {
	wh := &MockWarehouse{}
	result, err := NewWriter(wh, testTables).WriteSpending(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, wh.Calls)
}

func TestWriteRunway(t *testing.T) {
	runway := &domain.RunwaySnapshot{
		CashOnHand:   dec("10000"),
		AnnualBurn:   dec("5000"),
		RunwayDays:   730,
		RunwayYears:  dec("2"),
		LastUntil:    snapshotDay.AddDays(730),
		SnapshotDate: snapshotDay,
	}
	wh := &MockWarehouse{}

	result, err := NewWriter(wh, testTables).WriteRunway(context.Background(), runway)
	require.NoError(t, err)

	assert.Equal(t, 1, result.RowsLoaded)
	assert.Equal(t, []string{"delete:runway_info", "load:runway_info"}, wh.Calls)
	rows := decodeLines(t, wh.Loads[0].Data)
	assert.Equal(t, 730.0, rows[0]["runway_days"])
	assert.Equal(t, 2.0, rows[0]["runway_years"])
	assert.Equal(t, "2027-12-16", rows[0]["last_until"])
}

func TestWriteRunway_AbsentIsNotAnError(t *testing.T) {
	wh := &MockWarehouse{}
	result, err := NewWriter(wh, testTables).WriteRunway(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Empty(t, wh.Calls)
}

func TestWriteRunway_DefaultsMissingDate(t *testing.T) {
	wh := &MockWarehouse{}
	w := NewWriter(wh, testTables, WithClock(fixedClock))

	_, err := w.WriteRunway(context.Background(), &domain.RunwaySnapshot{AnnualBurn: dec("1")})
	require.NoError(t, err)

	rows := decodeLines(t, wh.Loads[0].Data)
	assert.Equal(t, "2026-01-02", rows[0]["snapshot_date"])
	_, hasLastUntil := rows[0]["last_until"]
	assert.False(t, hasLastUntil)
}

func TestCanonicalJSON_Empty(t *testing.T) {
	s, err := CanonicalJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}

func TestTablesFrom(t *testing.T) {
	got := TablesFrom(config.WarehouseConfig{
		AccountsTable: "a",
		SpendingTable: "s",
		RunwayTable:   "r",
	})
	assert.Equal(t, Tables{Accounts: "a", Spending: "s", Runway: "r"}, got)
}

func TestNumberAlwaysFractional(t *testing.T) {
	assert.Equal(t, "2180.0", string(number(dec("2180"))))
	assert.Equal(t, "8.5", string(number(dec("8.5"))))
	assert.Equal(t, "-12.0", string(number(dec("-12"))))
}
