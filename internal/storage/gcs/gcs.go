// Package gcs uploads columnar extracts to Google Cloud Storage.
//
// Clients use application default credentials unless the caller passes
// explicit client options.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"github.com/apache/arrow/go/v14/arrow"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/breatheroute/airdata-extract/internal/columnar"
)

// ParquetContentType is set on uploaded parquet objects.
const ParquetContentType = "application/vnd.apache.parquet"

var (
	ErrCreateClient = errors.New("failed to create GCS client")
	ErrUpload       = errors.New("failed to upload GCS object")
	ErrClose        = errors.New("failed to close GCS object")

	uploadTimeout = 10 * time.Minute

	// Testing support.
	storageNewClient = storage.NewClient
)

// Config holds configuration for the storage client.
type Config struct {
	Logger  zerolog.Logger
	Options []option.ClientOption
}

// StorageClient writes objects into arbitrary buckets.
type StorageClient struct {
	client stiface.Client
	logger zerolog.Logger
}

// NewClient returns a GCS client.
func NewClient(ctx context.Context, cfg Config) (*StorageClient, error) {
	client, err := storageNewClient(ctx, cfg.Options...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCreateClient, err)
	}
	return newStorageClient(stiface.AdaptClient(client), cfg.Logger), nil
}

func newStorageClient(client stiface.Client, logger zerolog.Logger) *StorageClient {
	return &StorageClient{
		client: client,
		logger: logger,
	}
}

// UploadTable encodes the table as parquet and writes it to bucket/key,
// replacing any existing object.
func (s *StorageClient) UploadTable(ctx context.Context, table arrow.Table, bucket, key string) error {
	var buf bytes.Buffer
	if err := columnar.WriteParquet(&buf, table); err != nil {
		return err
	}
	return s.Upload(ctx, bucket, key, ParquetContentType, buf.Bytes())
}

// Upload writes contents to bucket/key.
//
// The storage package retries transient errors until the context expires, so
// the upload is bounded by uploadTimeout.
func (s *StorageClient) Upload(ctx context.Context, bucket, key, contentType string, contents []byte) error {
	s.logger.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("bytes", len(contents)).
		Msg("uploading object")

	// Cancelling storageCtx aborts a partially written object.
	storageCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	writer := s.client.Bucket(bucket).Object(key).NewWriter(storageCtx)
	if contentType != "" {
		writer.ObjectAttrs().ContentType = contentType
	}
	for written := 0; written < len(contents); {
		n, err := writer.Write(contents[written:])
		if err != nil {
			return fmt.Errorf("%w: gs://%s/%s: %w", ErrUpload, bucket, key, err)
		}
		written += n
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: gs://%s/%s: %w", ErrClose, bucket, key, err)
	}

	s.logger.Info().
		Str("bucket", bucket).
		Str("key", key).
		Int("bytes", len(contents)).
		Msg("object uploaded")
	return nil
}

// Close closes the underlying client.
func (s *StorageClient) Close() error {
	return s.client.Close()
}
