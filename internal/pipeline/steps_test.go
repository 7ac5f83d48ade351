package pipeline_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/archive"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/config"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/logger"
	"github.com/dvloznov/finance-runway/internal/pipeline"
	"github.com/dvloznov/finance-runway/internal/processor"
	"github.com/dvloznov/finance-runway/internal/snapshot"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var runDay = civil.Date{Year: 2025, Month: 12, Day: 16}

// MockSource is a mock implementation of Source for testing.
type MockSource struct {
	FetchAccountsFunc     func(ctx context.Context) ([]domain.AccountRaw, error)
	FetchTransactionsFunc func(ctx context.Context, window domain.DateRange) ([]domain.TransactionRaw, error)

	Windows []domain.DateRange
}

func (m *MockSource) FetchAccounts(ctx context.Context) ([]domain.AccountRaw, error) {
	if m.FetchAccountsFunc != nil {
		return m.FetchAccountsFunc(ctx)
	}
	return nil, nil
}

func (m *MockSource) FetchTransactions(ctx context.Context, window domain.DateRange) ([]domain.TransactionRaw, error) {
	m.Windows = append(m.Windows, window)
	if m.FetchTransactionsFunc != nil {
		return m.FetchTransactionsFunc(ctx, window)
	}
	return nil, nil
}

// MockArchive keeps payloads in memory.
type MockArchive struct {
	Saved map[civil.Date]archive.RawPayload
}

func (m *MockArchive) Save(ctx context.Context, p archive.RawPayload) ([]string, error) {
	if m.Saved == nil {
		m.Saved = make(map[civil.Date]archive.RawPayload)
	}
	m.Saved[p.SnapshotDate] = p
	return []string{archive.URI("mock", archive.ObjectPath(p.SnapshotDate, "accounts.json"))}, nil
}

func (m *MockArchive) Load(ctx context.Context, date civil.Date) (*archive.RawPayload, error) {
	p, ok := m.Saved[date]
	if !ok {
		return nil, archive.ErrObjectNotFound
	}
	return &p, nil
}

// MockWarehouse records the load payloads per table.
type MockWarehouse struct {
	DeleteSnapshotFunc func(ctx context.Context, table string, date civil.Date) error

	Calls []string
	Data  map[string][]byte
}

func (m *MockWarehouse) DeleteSnapshot(ctx context.Context, table string, date civil.Date) error {
	m.Calls = append(m.Calls, "delete:"+table+":"+date.String())
	if m.DeleteSnapshotFunc != nil {
		return m.DeleteSnapshotFunc(ctx, table, date)
	}
	return nil
}

func (m *MockWarehouse) Load(ctx context.Context, req bq.LoadRequest) error {
	m.Calls = append(m.Calls, "load:"+req.Table+":"+req.SnapshotDate.String())
	if m.Data == nil {
		m.Data = make(map[string][]byte)
	}
	m.Data[req.Table] = req.Data
	return nil
}

func (m *MockWarehouse) rows(t *testing.T, table string) []map[string]any {
	t.Helper()
	var rows []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(m.Data[table]))
	for sc.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &row))
		rows = append(rows, row)
	}
	return rows
}

var tables = snapshot.Tables{Accounts: "accounts_raw", Spending: "mandatory_spending", Runway: "runway_info"}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testRules() config.Rules {
	return config.Rules{
		CashTitles:              []string{"Checking"},
		InvestmentTitles:        []string{"401k"},
		CarIdentifier:           "honda",
		CondoIdentifier:         "Condo",
		APICalculatedCategories: []string{"Rent", "Utilities", "Groceries", "Insurance"},
		GroceriesEstimate:       500,
		RestaurantEstimate:      200,
		HealthInsuranceEstimate: 300,
	}
}

func testSource() *MockSource {
	return &MockSource{
		FetchAccountsFunc: func(ctx context.Context) ([]domain.AccountRaw, error) {
			return []domain.AccountRaw{
				{ID: 1, Title: "Checking", CurrentBalance: d("6360")},
				{ID: 2, Title: "401k", CurrentBalance: d("20000")},
				{ID: 3, Title: "Honda Civic", CurrentBalance: d("-12000")},
				{ID: 4, Title: "Condo", CurrentBalance: d("250000")},
				{ID: 5, Title: "Wallet", CurrentBalance: d("40")},
			}, nil
		},
		FetchTransactionsFunc: func(ctx context.Context, window domain.DateRange) ([]domain.TransactionRaw, error) {
			cat := func(title string) *domain.TransactionCategory {
				return &domain.TransactionCategory{Title: title}
			}
			return []domain.TransactionRaw{
				{ID: 1, Amount: d("-1800"), Category: cat("Rent")},
				{ID: 2, Amount: d("-380"), Category: cat("Utilities")},
				{ID: 3, Amount: d("-999"), Category: cat("Groceries")},
				{ID: 4, Amount: d("-50"), Category: cat("Coffee")},
				{ID: 5, Amount: d("-10")},
			}, nil
		},
	}
}

func newDeps(src pipeline.Source, wh bq.Warehouse, arc pipeline.RawArchive) pipeline.Deps {
	cfg := testRules()
	return pipeline.Deps{
		Source:              src,
		Archive:             arc,
		Writer:              snapshot.NewWriter(wh, tables),
		Rules:               processor.NewRules(cfg),
		MandatoryCategories: cfg.APICalculatedCategories,
	}
}

func TestNewState(t *testing.T) {
	state := pipeline.NewState(runDay)
	assert.NotEmpty(t, state.RunID)
	assert.Equal(t, runDay, state.SnapshotDate)
	assert.Equal(t, civil.Date{Year: 2025, Month: 12, Day: 15}, state.Window.End)
	assert.Equal(t, civil.Date{Year: 2024, Month: 12, Day: 15}, state.Window.Start)
	assert.NotEqual(t, state.RunID, pipeline.NewState(runDay).RunID)
}

func TestRefreshPipeline_EndToEnd(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(buf))
	src := testSource()
	wh := &MockWarehouse{}
	arc := &MockArchive{}

	state := pipeline.NewState(runDay)
	err := pipeline.NewRefreshPipeline(newDeps(src, wh, arc)).Execute(ctx, state)
	require.NoError(t, err)

	assert.Equal(t, []domain.DateRange{state.Window}, src.Windows)
	assert.Equal(t, []string{
		"delete:accounts_raw:2025-12-16", "load:accounts_raw:2025-12-16",
		"delete:mandatory_spending:2025-12-16", "load:mandatory_spending:2025-12-16",
		"delete:runway_info:2025-12-16", "load:runway_info:2025-12-16",
	}, wh.Calls)

	accounts := wh.rows(t, "accounts_raw")
	require.Len(t, accounts, 5)
	var categories []any
	for _, row := range accounts {
		categories = append(categories, row["category"])
	}
	assert.Equal(t, []any{"Cash", "Investment", "Car", "Condo", "Other"}, categories)

	spending := wh.rows(t, "mandatory_spending")
	require.Len(t, spending, 1)
	assert.Equal(t, 2180.0, spending[0]["api_mandatory_spend"])
	assert.Equal(t, 3180.0, spending[0]["grand_total_annual"])

	runway := wh.rows(t, "runway_info")
	require.Len(t, runway, 1)
	assert.Equal(t, 730.0, runway[0]["runway_days"])
	assert.Equal(t, 2.0, runway[0]["runway_years"])

	require.Len(t, state.Results, 3)
	assert.Equal(t, 5, state.Results[0].RowsLoaded)
	assert.Len(t, state.ArchiveURIs, 1)
	assert.Contains(t, arc.Saved, runDay)

	assert.Contains(t, buf.String(), state.RunID)
	assert.Contains(t, buf.String(), "Mandatory categories without transactions")
	assert.Contains(t, buf.String(), `"categories":["Insurance"]`)
}

func TestRefreshPipeline_RunTwiceSameRows(t *testing.T) {
	wh := &MockWarehouse{}
	deps := newDeps(testSource(), wh, nil)

	require.NoError(t, pipeline.NewRefreshPipeline(deps).Execute(context.Background(), pipeline.NewState(runDay)))
	first := map[string][]byte{}
	for k, v := range wh.Data {
		first[k] = v
	}
	require.NoError(t, pipeline.NewRefreshPipeline(deps).Execute(context.Background(), pipeline.NewState(runDay)))

	assert.Equal(t, first, wh.Data)
	assert.Len(t, wh.Calls, 12)
}

func TestRefreshPipeline_SourceFailureWritesNothing(t *testing.T) {
	boom := errors.New("401 unauthorized")
	src := &MockSource{
		FetchAccountsFunc: func(ctx context.Context) ([]domain.AccountRaw, error) { return nil, boom },
	}
	wh := &MockWarehouse{}

	err := pipeline.NewRefreshPipeline(newDeps(src, wh, nil)).Execute(context.Background(), pipeline.NewState(runDay))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "pipeline step 1 failed")
	assert.Empty(t, wh.Calls)
	assert.Empty(t, src.Windows)
}

func TestRefreshPipeline_DeleteFailureAborts(t *testing.T) {
	wh := &MockWarehouse{
		DeleteSnapshotFunc: func(ctx context.Context, table string, date civil.Date) error {
			return errors.New("access denied")
		},
	}

	err := pipeline.NewRefreshPipeline(newDeps(testSource(), wh, nil)).Execute(context.Background(), pipeline.NewState(runDay))
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrDeleteFailed)
	assert.Equal(t, []string{"delete:accounts_raw:2025-12-16"}, wh.Calls)
}

func TestRefreshPipeline_ZeroBurnSkipsRunway(t *testing.T) {
	src := testSource()
	src.FetchTransactionsFunc = func(ctx context.Context, window domain.DateRange) ([]domain.TransactionRaw, error) {
		return nil, nil
	}
	wh := &MockWarehouse{}
	deps := newDeps(src, wh, nil)
	deps.Rules = processor.NewRules(config.Rules{CashTitles: []string{"Checking"}})

	state := pipeline.NewState(runDay)
	require.NoError(t, pipeline.NewRefreshPipeline(deps).Execute(context.Background(), state))

	assert.Nil(t, state.Runway)
	assert.NotContains(t, wh.Data, "runway_info")
	require.Len(t, state.Results, 3)
	assert.True(t, state.Results[2].Skipped)
}

func TestReplayPipeline(t *testing.T) {
	arc := &MockArchive{}
	live := &MockWarehouse{}
	require.NoError(t, pipeline.NewRefreshPipeline(newDeps(testSource(), live, arc)).
		Execute(context.Background(), pipeline.NewState(runDay)))

	replayed := &MockWarehouse{}
	offline := &MockSource{
		FetchAccountsFunc: func(ctx context.Context) ([]domain.AccountRaw, error) {
			t.Fatal("replay must not call the source")
			return nil, nil
		},
	}
	err := pipeline.NewReplayPipeline(newDeps(offline, replayed, arc)).
		Execute(context.Background(), pipeline.NewState(runDay))
	require.NoError(t, err)

	assert.Equal(t, live.Data, replayed.Data)
}

func TestReplayPipeline_MissingArchive(t *testing.T) {
	err := pipeline.NewReplayPipeline(newDeps(nil, &MockWarehouse{}, &MockArchive{})).
		Execute(context.Background(), pipeline.NewState(runDay))
	assert.ErrorIs(t, err, archive.ErrObjectNotFound)

	err = pipeline.NewReplayPipeline(newDeps(nil, &MockWarehouse{}, nil)).
		Execute(context.Background(), pipeline.NewState(runDay))
	assert.Error(t, err)
}

func TestUnmatchedCategories(t *testing.T) {
	txs := []domain.TransactionRaw{
		{Category: &domain.TransactionCategory{Title: "Rent"}},
		{},
	}
	got := pipeline.UnmatchedCategories([]string{"Utilities", "Rent", "Insurance", "Uncategorized"}, txs)
	assert.Equal(t, []string{"Insurance", "Utilities"}, got)
	assert.Empty(t, pipeline.UnmatchedCategories(nil, txs))
}
