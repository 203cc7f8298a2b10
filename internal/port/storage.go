package port

import (
	"context"
	"io"
)

// UploadInput describes an object written to the archive or a staging bucket.
// An empty Bucket means the store's configured bucket.
type UploadInput struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
	Metadata    map[string]string
}

// UploadOutput is where an uploaded object ended up.
type UploadOutput struct {
	Location string
	ETag     string
}

// ObjectStorage is the blob store behind result archiving and bucket-triggered
// intake. Deleting a missing object is not an error.
type ObjectStorage interface {
	Upload(ctx context.Context, input UploadInput) (*UploadOutput, error)
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
	// Ping checks that the configured bucket is reachable.
	Ping(ctx context.Context) error
}
