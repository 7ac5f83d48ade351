package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"google.golang.org/api/option"
)

// BigQueryWarehouse is the concrete implementation of Warehouse and Inspector
// backed by a single BigQuery dataset. It holds a shared BigQuery client to
// avoid creating a new connection for each operation.
type BigQueryWarehouse struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewBigQueryWarehouse creates a BigQueryWarehouse for projectID.datasetID.
// Extra client options (endpoint, credentials) are passed to the client.
func NewBigQueryWarehouse(ctx context.Context, projectID, datasetID string, opts ...option.ClientOption) (*BigQueryWarehouse, error) {
	if err := ValidateIdentifier(datasetID); err != nil {
		return nil, fmt.Errorf("NewBigQueryWarehouse: dataset: %w", err)
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryWarehouse: creating client: %w", err)
	}
	return NewBigQueryWarehouseWithClient(client, datasetID), nil
}

// NewBigQueryWarehouseWithClient wraps an existing client. The warehouse
// takes ownership of the client and closes it in Close.
func NewBigQueryWarehouseWithClient(client *bigquery.Client, datasetID string) *BigQueryWarehouse {
	return &BigQueryWarehouse{
		client:    client,
		projectID: client.Project(),
		datasetID: datasetID,
	}
}

// Close closes the BigQuery client connection. This should be called when
// the warehouse is no longer needed to release resources.
func (w *BigQueryWarehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// DeleteSnapshot delegates to DeleteSnapshotWithClient with the shared client.
func (w *BigQueryWarehouse) DeleteSnapshot(ctx context.Context, table string, date civil.Date) error {
	return DeleteSnapshotWithClient(ctx, w.client, w.datasetID, table, date)
}

// Load delegates to LoadRowsWithClient with the shared client.
func (w *BigQueryWarehouse) Load(ctx context.Context, req bq.LoadRequest) error {
	return LoadRowsWithClient(ctx, w.client, w.datasetID, req)
}

// TableSchema delegates to TableSchemaWithClient with the shared client.
func (w *BigQueryWarehouse) TableSchema(ctx context.Context, table string) ([]bq.ColumnSchema, error) {
	return TableSchemaWithClient(ctx, w.client, w.datasetID, table)
}

// SnapshotHistory delegates to SnapshotHistoryWithClient with the shared client.
func (w *BigQueryWarehouse) SnapshotHistory(ctx context.Context, table string, limit int) ([]bq.SnapshotCount, error) {
	return SnapshotHistoryWithClient(ctx, w.client, w.datasetID, table, limit)
}

var (
	_ bq.Warehouse = (*BigQueryWarehouse)(nil)
	_ bq.Inspector = (*BigQueryWarehouse)(nil)
)
