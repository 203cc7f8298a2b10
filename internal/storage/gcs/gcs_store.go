package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"

	"materialflow/internal/port"
)

// Store implements port.ObjectStorage on Google Cloud Storage and stages
// documents for Vertex AI two-phase calls.
type Store struct {
	client *storage.Client
	bucket string
	logger *zap.Logger
}

// NewStore creates a Store using application default credentials.
func NewStore(ctx context.Context, bucket string, logger *zap.Logger) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket must be set")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &Store{client: client, bucket: bucket, logger: logger}, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(client *storage.Client, bucket string, logger *zap.Logger) *Store {
	return &Store{client: client, bucket: bucket, logger: logger}
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Bucket returns the default bucket.
func (s *Store) Bucket() string {
	return s.bucket
}

// PutIfAbsent writes data to key only if the object does not exist yet and
// returns its gs:// URI. An existing object is not an error, so staging the
// same document twice is safe.
func (s *Store) PutIfAbsent(ctx context.Context, key, contentType string, data []byte) (string, error) {
	uri := fmt.Sprintf("gs://%s/%s", s.bucket, key)
	w := s.client.Bucket(s.bucket).Object(key).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		if isPreconditionFailed(err) {
			return uri, nil
		}
		return "", fmt.Errorf("writing gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			s.logger.Debug("gcs.PutIfAbsent: object already exists", zap.String("uri", uri))
			return uri, nil
		}
		return "", fmt.Errorf("finalizing gcs object %s: %w", key, err)
	}
	return uri, nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

func (s *Store) bucketOr(bucket string) string {
	if bucket == "" {
		return s.bucket
	}
	return bucket
}

func (s *Store) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	bucket := s.bucketOr(input.Bucket)
	w := s.client.Bucket(bucket).Object(input.Key).NewWriter(ctx)
	w.ContentType = input.ContentType
	w.Metadata = input.Metadata

	if _, err := io.Copy(w, input.Body); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("gcs upload failed for key %s: %w", input.Key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gcs upload failed for key %s: %w", input.Key, err)
	}

	attrs := w.Attrs()
	out := &port.UploadOutput{Location: fmt.Sprintf("gs://%s/%s", bucket, input.Key)}
	if attrs != nil {
		out.ETag = attrs.Etag
	}
	return out, nil
}

func (s *Store) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucketOr(bucket)).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs download failed for key %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading gcs object %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Delete(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(s.bucketOr(bucket)).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for key %s: %w", key, err)
	}
	return nil
}

// Ping checks that the default bucket exists and is accessible.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.Bucket(s.bucket).Attrs(ctx); err != nil {
		return fmt.Errorf("gcs bucket %s: %w", s.bucket, err)
	}
	return nil
}
