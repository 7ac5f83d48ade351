package bigquery

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/logger"
)

// LoggingWarehouse is a Warehouse that only logs the operations it would
// perform. It backs the --dry-run mode of the refresh job.
type LoggingWarehouse struct{}

// DeleteSnapshot logs the delete and returns nil.
func (LoggingWarehouse) DeleteSnapshot(ctx context.Context, table string, date civil.Date) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("table", table).
		Str("snapshot_date", date.String()).
		Str("operation", "delete").
		Msg("[DRY RUN] Would delete snapshot rows")
	return nil
}

// Load logs the load and returns nil.
func (LoggingWarehouse) Load(ctx context.Context, req LoadRequest) error {
	log := logger.FromContext(ctx)
	log.Info().
		Str("table", req.Table).
		Str("snapshot_date", req.SnapshotDate.String()).
		Str("operation", "load").
		Int("rows", req.Rows).
		Int("bytes", len(req.Data)).
		Msg("[DRY RUN] Would load snapshot rows")
	log.Debug().Str("table", req.Table).Bytes("payload", req.Data).Msg("Dry run payload")
	return nil
}
