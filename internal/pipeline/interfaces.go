package pipeline

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/archive"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/snapshot"
)

// Source fetches raw data from the personal-finance API.
// This interface enables mocking and testing of the HTTP client.
type Source interface {
	FetchAccounts(ctx context.Context) ([]domain.AccountRaw, error)
	FetchTransactions(ctx context.Context, window domain.DateRange) ([]domain.TransactionRaw, error)
}

// RawArchive stores and replays raw payloads.
type RawArchive interface {
	Save(ctx context.Context, p archive.RawPayload) ([]string, error)
	Load(ctx context.Context, date civil.Date) (*archive.RawPayload, error)
}

// SnapshotWriter persists the derived datasets.
type SnapshotWriter interface {
	WriteAccounts(ctx context.Context, records []domain.AccountRecord) (snapshot.WriteResult, error)
	WriteSpending(ctx context.Context, spending *domain.SpendingSnapshot) (snapshot.WriteResult, error)
	WriteRunway(ctx context.Context, runway *domain.RunwaySnapshot) (snapshot.WriteResult, error)
}

var (
	_ RawArchive     = (*archive.Archiver)(nil)
	_ SnapshotWriter = (*snapshot.Writer)(nil)
)
