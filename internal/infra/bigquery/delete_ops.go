package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// deleteSnapshotSQL builds the eviction statement for one table. The date is
// always bound as @snapshot_date.
func deleteSnapshotSQL(ref string) string {
	return `DELETE FROM ` + ref + ` WHERE snapshot_date = @snapshot_date`
}

// DeleteSnapshotWithClient removes every row of datasetID.table stored for
// date and waits for the DML job to finish. A missing table is reported as
// bq.ErrTableNotFound.
func DeleteSnapshotWithClient(ctx context.Context, client *bigquery.Client, datasetID, table string, date civil.Date) error {
	ref, err := tableRef(client.Project(), datasetID, table)
	if err != nil {
		return fmt.Errorf("DeleteSnapshotWithClient: %w", err)
	}

	q := client.Query(deleteSnapshotSQL(ref))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "snapshot_date", Value: date},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("DeleteSnapshotWithClient: run query: %w", mapNotFound(err))
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("DeleteSnapshotWithClient: wait for job: %w", mapNotFound(err))
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("DeleteSnapshotWithClient: job error: %w", mapNotFound(err))
	}

	return nil
}
