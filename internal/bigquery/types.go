package bigquery

import (
	"context"
	"encoding/json"
	"errors"

	"cloud.google.com/go/civil"
)

// ErrTableNotFound is returned by a Warehouse when the target table (or its
// dataset) does not exist yet.
var ErrTableNotFound = errors.New("table not found")

// Warehouse is the write side of the analytical store. Both operations block
// until the warehouse reports completion.
type Warehouse interface {
	// DeleteSnapshot removes every row of table whose snapshot_date equals date.
	DeleteSnapshot(ctx context.Context, table string, date civil.Date) error

	// Load appends the newline-delimited JSON rows in req to req.Table using a
	// batch load job, creating the table with an inferred schema if needed.
	Load(ctx context.Context, req LoadRequest) error
}

// Inspector exposes read-only views of the snapshot tables for operators.
type Inspector interface {
	// TableSchema returns the column layout of table.
	TableSchema(ctx context.Context, table string) ([]ColumnSchema, error)

	// SnapshotHistory returns the row count per snapshot_date, newest first.
	SnapshotHistory(ctx context.Context, table string, limit int) ([]SnapshotCount, error)
}

// LoadRequest is one batch load of rows sharing a single snapshot date.
type LoadRequest struct {
	Table        string
	SnapshotDate civil.Date
	Rows         int
	Data         []byte
}

// ColumnSchema describes one column of a table.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Mode string `json:"mode"`
}

// SnapshotCount is the number of rows stored for one snapshot date.
type SnapshotCount struct {
	SnapshotDate civil.Date `bigquery:"snapshot_date"`
	Rows         int64      `bigquery:"row_count"`
}

// AccountRow represents an account snapshot row in BigQuery.
type AccountRow struct {
	Title        string      `json:"title"`
	Balance      json.Number `json:"balance"`
	Category     string      `json:"category"`
	SnapshotDate civil.Date  `json:"snapshot_date"`
}

// SpendingRow represents a mandatory spending snapshot row in BigQuery.
// ManualEstimates holds the JSON text of the estimates mapping.
type SpendingRow struct {
	APIMandatorySpend   json.Number `json:"api_mandatory_spend"`
	ManualEstimates     string      `json:"manual_estimates"`
	GrandTotalAnnual    json.Number `json:"grand_total_annual"`
	GrandTotalDaily     json.Number `json:"grand_total_daily"`
	GrandTotalTwoMonths json.Number `json:"grand_total_two_months"`
	SnapshotDate        civil.Date  `json:"snapshot_date"`
}

// RunwayRow represents a runway snapshot row in BigQuery.
type RunwayRow struct {
	CashOnHand   json.Number `json:"cash_on_hand"`
	AnnualBurn   json.Number `json:"annual_burn"`
	RunwayDays   int64       `json:"runway_days"`
	RunwayYears  json.Number `json:"runway_years"`
	LastUntil    *civil.Date `json:"last_until,omitempty"`
	SnapshotDate civil.Date  `json:"snapshot_date"`
}
