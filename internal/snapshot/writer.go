package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/config"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/logger"
)

var (
	// ErrDeleteFailed wraps a stale-data eviction failure other than a missing table.
	ErrDeleteFailed = errors.New("delete existing snapshot")
	// ErrLoadFailed wraps a bulk load failure.
	ErrLoadFailed = errors.New("load snapshot")
)

// Tables names the target table of each dataset.
type Tables struct {
	Accounts string
	Spending string
	Runway   string
}

// TablesFrom takes the table names of a warehouse configuration.
func TablesFrom(cfg config.WarehouseConfig) Tables {
	return Tables{
		Accounts: cfg.AccountsTable,
		Spending: cfg.SpendingTable,
		Runway:   cfg.RunwayTable,
	}
}

// WriteResult describes the outcome of one dataset write.
type WriteResult struct {
	Table             string
	SnapshotDate      civil.Date
	RowsLoaded        int
	DuplicatesRemoved int
	Skipped           bool
}

// Writer replaces the rows of a snapshot date with a fresh set: it deletes
// whatever is stored for the date, then batch-loads the new rows. Re-running
// a write for the same date leaves exactly one set of rows behind.
//
// The delete and the load are separate warehouse jobs; between them the date
// has no rows.
type Writer struct {
	warehouse bq.Warehouse
	tables    Tables
	now       func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the clock used to default a missing snapshot date.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// NewWriter creates a Writer targeting tables in warehouse.
func NewWriter(warehouse bq.Warehouse, tables Tables, opts ...Option) *Writer {
	w := &Writer{
		warehouse: warehouse,
		tables:    tables,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteAccounts replaces the account rows for the records' snapshot date.
// Exact duplicates are dropped first, keeping the first occurrence. An empty
// slice is a no-op.
func (w *Writer) WriteAccounts(ctx context.Context, records []domain.AccountRecord) (WriteResult, error) {
	log := logger.FromContext(ctx)
	table := w.tables.Accounts
	if len(records) == 0 {
		log.Warn().Str("table", table).Msg("No accounts to write")
		return WriteResult{Table: table, Skipped: true}, nil
	}

	unique := DeduplicateAccounts(records)
	removed := len(records) - len(unique)
	if removed > 0 {
		log.Info().
			Str("table", table).
			Int("duplicates", removed).
			Msg("Removed duplicate accounts from payload")
	}

	date := w.resolveDate(ctx, table, unique[0].SnapshotDate)
	rows := make([]any, 0, len(unique))
	for _, rec := range unique {
		rows = append(rows, accountRow(rec, date))
	}

	result, err := w.replace(ctx, table, date, rows)
	result.DuplicatesRemoved = removed
	return result, err
}

// WriteSpending replaces the spending row for the snapshot's date. A nil
// snapshot is a no-op.
func (w *Writer) WriteSpending(ctx context.Context, spending *domain.SpendingSnapshot) (WriteResult, error) {
	table := w.tables.Spending
	if spending == nil {
		return WriteResult{Table: table, Skipped: true}, nil
	}

	date := w.resolveDate(ctx, table, spending.SnapshotDate)
	row, err := spendingRow(spending, date)
	if err != nil {
		return WriteResult{Table: table, SnapshotDate: date}, fmt.Errorf("WriteSpending: %w", err)
	}
	return w.replace(ctx, table, date, []any{row})
}

// WriteRunway replaces the runway row for the snapshot's date. A nil runway
// means the burn rate was not positive and nothing is written.
func (w *Writer) WriteRunway(ctx context.Context, runway *domain.RunwaySnapshot) (WriteResult, error) {
	table := w.tables.Runway
	if runway == nil {
		log := logger.FromContext(ctx)
		log.Info().Str("table", table).Msg("No runway computed, skipping write")
		return WriteResult{Table: table, Skipped: true}, nil
	}

	date := w.resolveDate(ctx, table, runway.SnapshotDate)
	return w.replace(ctx, table, date, []any{runwayRow(runway, date)})
}

// resolveDate returns date, or today when date is unset.
func (w *Writer) resolveDate(ctx context.Context, table string, date civil.Date) civil.Date {
	if date.IsValid() {
		return date
	}
	today := civil.DateOf(w.now())
	log := logger.FromContext(ctx)
	log.Warn().
		Str("table", table).
		Str("snapshot_date", today.String()).
		Msg("Snapshot date missing in data, using current date")
	return today
}

// replace evicts the rows for date and loads rows in their place.
func (w *Writer) replace(ctx context.Context, table string, date civil.Date, rows []any) (WriteResult, error) {
	log := logger.FromContext(ctx).With().
		Str("table", table).
		Str("snapshot_date", date.String()).
		Logger()
	result := WriteResult{Table: table, SnapshotDate: date}

	data, err := encodeRows(rows)
	if err != nil {
		return result, fmt.Errorf("replace %s: encoding rows: %w", table, err)
	}

	err = w.warehouse.DeleteSnapshot(ctx, table, date)
	switch {
	case err == nil:
		log.Info().Str("operation", "delete").Msg("Cleared existing entries")
	case errors.Is(err, bq.ErrTableNotFound):
		log.Info().Str("operation", "delete").Msg("Table not found, proceeding")
	default:
		log.Error().Err(err).Str("operation", "delete").Msg("Failed to clear existing entries")
		return result, fmt.Errorf("replace %s for %s: %w: %w", table, date, ErrDeleteFailed, err)
	}

	req := bq.LoadRequest{
		Table:        table,
		SnapshotDate: date,
		Rows:         len(rows),
		Data:         data,
	}
	if err := w.warehouse.Load(ctx, req); err != nil {
		log.Error().Err(err).Str("operation", "load").Int("rows", len(rows)).Msg("Failed to load data")
		return result, fmt.Errorf("replace %s for %s: %w: %w", table, date, ErrLoadFailed, err)
	}

	result.RowsLoaded = len(rows)
	log.Info().Str("operation", "load").Int("rows", len(rows)).Msg("Successfully loaded data")
	return result, nil
}
