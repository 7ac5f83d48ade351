// Package archive keeps the raw source payloads of each run in Cloud Storage
// so a snapshot can be re-derived later without calling the source API.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/finance-runway/internal/domain"
	"github.com/dvloznov/finance-runway/internal/logger"
)

const (
	accountsObject     = "accounts.json"
	transactionsObject = "transactions.json"
)

// RawPayload is the unprocessed source data of one snapshot date.
type RawPayload struct {
	SnapshotDate civil.Date
	Accounts     []domain.AccountRaw
	Transactions []domain.TransactionRaw
}

// Archiver writes and reads raw payloads under raw/<date>/ in one bucket.
type Archiver struct {
	store  ObjectStore
	bucket string
}

// NewArchiver creates an Archiver storing objects in bucket.
func NewArchiver(store ObjectStore, bucket string) *Archiver {
	return &Archiver{store: store, bucket: bucket}
}

// ObjectPath returns the object name of file for date.
func ObjectPath(date civil.Date, file string) string {
	return fmt.Sprintf("raw/%s/%s", date.String(), file)
}

// Save stores the accounts and transactions of p and returns their URIs.
// Saving the same date twice overwrites the earlier objects.
func (a *Archiver) Save(ctx context.Context, p RawPayload) ([]string, error) {
	if !p.SnapshotDate.IsValid() {
		return nil, fmt.Errorf("Save: invalid snapshot date %q", p.SnapshotDate)
	}

	objects := []struct {
		name  string
		value any
	}{
		{accountsObject, nonNil(p.Accounts)},
		{transactionsObject, nonNil(p.Transactions)},
	}

	uris := make([]string, 0, len(objects))
	for _, obj := range objects {
		data, err := json.Marshal(obj.value)
		if err != nil {
			return nil, fmt.Errorf("Save: encoding %s: %w", obj.name, err)
		}
		name := ObjectPath(p.SnapshotDate, obj.name)
		if err := a.store.Put(ctx, a.bucket, name, data); err != nil {
			return nil, fmt.Errorf("Save: %w", err)
		}
		uris = append(uris, URI(a.bucket, name))
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("snapshot_date", p.SnapshotDate.String()).
		Strs("objects", uris).
		Msg("Archived raw payload")

	return uris, nil
}

// Load reads the payload archived for date.
func (a *Archiver) Load(ctx context.Context, date civil.Date) (*RawPayload, error) {
	p := &RawPayload{SnapshotDate: date}

	data, err := a.store.Get(ctx, a.bucket, ObjectPath(date, accountsObject))
	if err != nil {
		return nil, fmt.Errorf("Load: accounts: %w", err)
	}
	if err := json.Unmarshal(data, &p.Accounts); err != nil {
		return nil, fmt.Errorf("Load: decoding accounts: %w", err)
	}

	data, err = a.store.Get(ctx, a.bucket, ObjectPath(date, transactionsObject))
	if err != nil {
		return nil, fmt.Errorf("Load: transactions: %w", err)
	}
	if err := json.Unmarshal(data, &p.Transactions); err != nil {
		return nil, fmt.Errorf("Load: decoding transactions: %w", err)
	}

	return p, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
