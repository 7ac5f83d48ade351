package bigquery

import (
	"bytes"
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	bq "github.com/dvloznov/finance-runway/internal/bigquery"
	"github.com/dvloznov/finance-runway/internal/logger"
)

// loadJobPrefix names load jobs after their table and date so they can be
// found in the job history. The client appends a random suffix.
func loadJobPrefix(table string, date civil.Date) string {
	return fmt.Sprintf("%s_%s_", table, date.String())
}

// newLoader configures a batch load of newline-delimited JSON that appends to
// the table, creating it with an inferred schema when it does not exist.
func newLoader(client *bigquery.Client, datasetID string, req bq.LoadRequest) *bigquery.Loader {
	source := bigquery.NewReaderSource(bytes.NewReader(req.Data))
	source.SourceFormat = bigquery.JSON
	source.AutoDetect = true

	loader := client.Dataset(datasetID).Table(req.Table).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded
	loader.JobID = loadJobPrefix(req.Table, req.SnapshotDate)
	loader.AddJobIDSuffix = true
	return loader
}

// LoadRowsWithClient runs a load job for req and waits for it to complete.
func LoadRowsWithClient(ctx context.Context, client *bigquery.Client, datasetID string, req bq.LoadRequest) error {
	if err := ValidateIdentifier(req.Table); err != nil {
		return fmt.Errorf("LoadRowsWithClient: %w", err)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("LoadRowsWithClient: no rows for %s", req.Table)
	}

	job, err := newLoader(client, datasetID, req).Run(ctx)
	if err != nil {
		return fmt.Errorf("LoadRowsWithClient: starting load job: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("job_id", job.ID()).
		Str("table", req.Table).
		Int("rows", req.Rows).
		Msg("Load job started")

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("LoadRowsWithClient: wait for job %s: %w", job.ID(), err)
	}

	if err := status.Err(); err != nil {
		return fmt.Errorf("LoadRowsWithClient: job %s error: %w", job.ID(), err)
	}

	return nil
}
