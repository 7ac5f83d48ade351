package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"google.golang.org/api/iterator"
)

const defaultHistoryLimit = 30

func snapshotHistorySQL(ref string) string {
	return fmt.Sprintf(`
		SELECT
			snapshot_date,
			COUNT(*) AS row_count
		FROM %s
		GROUP BY snapshot_date
		ORDER BY snapshot_date DESC
		LIMIT @limit
	`, ref)
}

// SnapshotHistoryWithClient lists the number of rows stored per snapshot date
// in datasetID.table, newest first. A non-positive limit uses the default.
func SnapshotHistoryWithClient(ctx context.Context, client *bigquery.Client, datasetID, table string, limit int) ([]bq.SnapshotCount, error) {
	ref, err := tableRef(client.Project(), datasetID, table)
	if err != nil {
		return nil, fmt.Errorf("SnapshotHistoryWithClient: %w", err)
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	q := client.Query(snapshotHistorySQL(ref))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "limit", Value: limit},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("SnapshotHistoryWithClient: reading query: %w", mapNotFound(err))
	}

	var history []bq.SnapshotCount
	for {
		var row bq.SnapshotCount
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("SnapshotHistoryWithClient: iterating: %w", err)
		}
		history = append(history, row)
	}

	return history, nil
}
