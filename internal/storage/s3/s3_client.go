package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"materialflow/internal/config"
	"materialflow/internal/domain"
	"materialflow/internal/port"
)

// Client is the S3-backed object store shared by the archive, the inbox and
// the crop evidence store. An empty bucket argument means the configured bucket.
type Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	logger   *zap.Logger
}

// NewClient creates a Client from configuration.
func NewClient(ctx context.Context, cfg *config.S3Config, logger *zap.Logger) (*Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return NewClientWithS3(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, logger), nil
}

// NewClientWithS3 wraps an existing SDK client.
func NewClientWithS3(client *s3.Client, bucket string, logger *zap.Logger) *Client {
	return &Client{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		logger:   logger,
	}
}

// Bucket returns the configured bucket.
func (c *Client) Bucket() string {
	return c.bucket
}

func (c *Client) bucketOr(bucket string) string {
	if bucket == "" {
		return c.bucket
	}
	return bucket
}

func (c *Client) Upload(ctx context.Context, input port.UploadInput) (*port.UploadOutput, error) {
	result, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucketOr(input.Bucket)),
		Key:         aws.String(input.Key),
		Body:        input.Body,
		ContentType: aws.String(input.ContentType),
		Metadata:    input.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 upload: %w", err)
	}

	etag := ""
	if result.ETag != nil {
		etag = *result.ETag
	}
	location := result.Location
	if location == "" {
		location = fmt.Sprintf("s3://%s/%s", c.bucketOr(input.Bucket), input.Key)
	}

	return &port.UploadOutput{
		Location: location,
		ETag:     etag,
	}, nil
}

func (c *Client) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucketOr(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("s3 download %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 download: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 download read: %w", err)
	}
	return data, nil
}

func (c *Client) Delete(ctx context.Context, bucket, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucketOr(bucket)),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}

// Ping checks that the configured bucket exists and is accessible.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3 head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// object is one listed key.
type object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// list returns up to max objects directly under prefix in key order. Keys
// in nested "folders" are not listed.
func (c *Client) list(ctx context.Context, prefix string, max int) ([]object, error) {
	out, err := c.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
		MaxKeys:   aws.Int32(int32(max)),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
	}
	objs := make([]object, 0, len(out.Contents))
	for _, o := range out.Contents {
		objs = append(objs, object{
			Key:          aws.ToString(o.Key),
			Size:         aws.ToInt64(o.Size),
			LastModified: aws.ToTime(o.LastModified),
		})
	}
	return objs, nil
}

// head returns the user metadata and content type of key.
func (c *Client) head(ctx context.Context, key string) (map[string]string, string, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("s3 head %s: %w", key, err)
	}
	return out.Metadata, aws.ToString(out.ContentType), nil
}

// move copies key to dst and deletes the source.
func (c *Client) move(ctx context.Context, key, dst string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		CopySource: aws.String(c.bucket + "/" + key),
		Key:        aws.String(dst),
	})
	if err != nil {
		return fmt.Errorf("s3 copy %s: %w", key, err)
	}
	return c.Delete(ctx, "", key)
}
