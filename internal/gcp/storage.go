package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"github.com/SendSign/SendSign-sub000/internal/services"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// BlobStore is the GCS-backed implementation of the ceremony's Storage
// collaborator. Documents, sealed artifacts and completion certificates are
// opaque byte blobs keyed by object name within one bucket.
type BlobStore struct {
	client *storage.Client
	bucket string
}

// NewBlobStore creates a BlobStore over the given bucket.
func NewBlobStore(ctx context.Context, bucket string) (*BlobStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a blob store")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	return &BlobStore{client: client, bucket: bucket}, nil
}

// Get streams one object into memory.
func (b *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := b.client.Bucket(b.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", b.bucket, key, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object gs://%s/%s: %w", b.bucket, key, err)
	}
	return data, nil
}

// Put writes one object, retrying with exponential backoff.
func (b *BlobStore) Put(ctx context.Context, key string, data []byte, meta services.BlobMeta) error {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		err := b.writeOnce(ctx, key, data, meta, false)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn(
			"Upload failed, will retry.",
			"gcsObject", key,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			slog.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", key, "error", ctx.Err())
			return ctx.Err()
		}
	}
	slog.Error("Upload failed after all retries.", "gcsObject", key, "error", lastErr)
	return fmt.Errorf("upload for %s failed after all retries: %w", key, lastErr)
}

// PutIfAbsent writes only when the object doesn't already exist. An existing
// object is not a failure: sealed artifacts are written at most once and a
// repeat seal attempt must treat the prior write as authoritative.
func (b *BlobStore) PutIfAbsent(ctx context.Context, key string, data []byte, meta services.BlobMeta) error {
	err := b.writeOnce(ctx, key, data, meta, true)
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 412 {
		slog.Info("SKIPPING: Object already exists.", "gcsObject", key)
		return nil
	}
	return err
}

func (b *BlobStore) writeOnce(ctx context.Context, key string, data []byte, meta services.BlobMeta, ifAbsent bool) error {
	writeCtx, cancel := context.WithTimeout(ctx, time.Second*50)
	defer cancel()

	obj := b.client.Bucket(b.bucket).Object(key)
	if ifAbsent {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	writer := obj.NewWriter(writeCtx)
	if meta.ContentType != "" {
		writer.ContentType = meta.ContentType
	}
	if meta.Filename != "" {
		writer.Metadata = map[string]string{"filename": meta.Filename}
	}
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}
	// Conditional failures surface on Close; return them unwrapped so the
	// caller can inspect the precondition code.
	return writer.Close()
}
