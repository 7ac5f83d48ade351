package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrObjectNotFound is returned when an archived object does not exist.
var ErrObjectNotFound = errors.New("archived object not found")

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Put writes data to bucket/object, replacing any existing object.
	Put(ctx context.Context, bucket, object string, data []byte) error

	// Get reads the bytes of bucket/object.
	Get(ctx context.Context, bucket, object string) ([]byte, error)
}

// GCSStore is the concrete implementation of ObjectStore that interacts with
// Google Cloud Storage. It holds a shared storage client.
type GCSStore struct {
	client        *storage.Client
	uploadTimeout time.Duration
}

// NewGCSStore creates a GCSStore. It assumes Application Default Credentials
// unless opts say otherwise.
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return NewGCSStoreWithClient(client), nil
}

// NewGCSStoreWithClient wraps an existing storage client.
func NewGCSStoreWithClient(client *storage.Client) *GCSStore {
	return &GCSStore{client: client, uploadTimeout: 2 * time.Minute}
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Put uploads data as a JSON object.
func (s *GCSStore) Put(ctx context.Context, bucket, object string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Put: write %s: %w", URI(bucket, object), err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Put: finalize upload %s: %w", URI(bucket, object), err)
	}

	return nil
}

// Get downloads the object bytes.
func (s *GCSStore) Get(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, fmt.Errorf("Get: %s: %w", URI(bucket, object), ErrObjectNotFound)
		}
		return nil, fmt.Errorf("Get: open reader %s: %w", URI(bucket, object), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Get: read %s: %w", URI(bucket, object), err)
	}

	return data, nil
}

// URI renders a gs:// URI for bucket/object.
func URI(bucket, object string) string {
	return "gs://" + bucket + "/" + object
}
