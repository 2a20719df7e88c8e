package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/marmos91/dittoweb/pkg/content"
)

// Client is the subset of the S3 API the store uses. *s3.Client satisfies it.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3ContentStore serves content from an S3 bucket.
//
// Content IDs map directly to object keys, optionally under a key prefix:
//
//	prefix "site/" + id "docs/index.html" -> key "site/docs/index.html"
//
// S3 has no directories; an ID ending in a slash never reaches the store
// because the request handler appends the index document first.
type S3ContentStore struct {
	client    Client
	bucket    string
	keyPrefix string // Optional prefix for all keys
	metrics   S3Metrics
}

// S3ContentStoreConfig contains configuration for the S3 content store.
type S3ContentStoreConfig struct {
	// Client is the configured S3 client.
	Client Client

	// Bucket is the S3 bucket name.
	Bucket string

	// KeyPrefix is prepended to every object key (for example "www/").
	KeyPrefix string

	// SkipBucketCheck skips the HeadBucket call made at construction.
	SkipBucketCheck bool

	// Metrics is optional; nil disables collection.
	Metrics S3Metrics
}

// NewS3ContentStore creates a new S3-based content store.
//
// Unless SkipBucketCheck is set, HeadBucket is called so a misconfigured
// bucket fails at startup instead of on the first request.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   metrics,
	}, nil
}

func (s *S3ContentStore) getObjectKey(id content.ContentID) (string, error) {
	clean, err := content.ParseID(string(id))
	if err != nil {
		return "", fmt.Errorf("content %s: %w", id, err)
	}
	if clean == "." {
		return "", fmt.Errorf("content %s: %w", id, content.ErrNotRegularFile)
	}

	return s.keyPrefix + string(clean), nil
}

// mapError translates S3 API errors into content store errors. The boolean
// is false when err has no content store equivalent.
func mapError(id content.ContentID, err error) (error, bool) {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound), true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("content %s: %w", id, content.ErrContentNotFound), true
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("content %s: %w", id, content.ErrAccessDenied), true
		case "SlowDown", "ServiceUnavailable":
			return fmt.Errorf("content %s: %w: %v", id, content.ErrUnavailable, err), true
		}
	}

	return err, false
}

// wrapError maps err to a content error, or wraps it with msg when S3
// reported something the content errors do not cover.
func wrapError(id content.ContentID, err error, msg string) error {
	if mapped, ok := mapError(id, err); ok {
		return mapped
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func (s *S3ContentStore) ReadContent(ctx context.Context, id content.ContentID) (io.ReadCloser, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	key, err := s.getObjectKey(id)
	if err != nil {
		return nil, 0, err
	}

	start := time.Now()
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = wrapError(id, err, "failed to get object from S3")
	}
	s.metrics.ObserveRequest("GetObject", time.Since(start), err)
	if err != nil {
		return nil, 0, err
	}
	if result.ContentLength == nil {
		_ = result.Body.Close()
		return nil, 0, fmt.Errorf("content length not available for %s", id)
	}

	return &countedBody{ReadCloser: result.Body, metrics: s.metrics}, uint64(*result.ContentLength), nil
}

func (s *S3ContentStore) GetContentSize(ctx context.Context, id content.ContentID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key, err := s.getObjectKey(id)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = wrapError(id, err, "failed to head object")
	}
	s.metrics.ObserveRequest("HeadObject", time.Since(start), err)
	if err != nil {
		return 0, err
	}

	if result.ContentLength == nil {
		return 0, fmt.Errorf("content length not available for %s", id)
	}

	return uint64(*result.ContentLength), nil
}

func (s *S3ContentStore) ContentExists(ctx context.Context, id content.ContentID) (bool, error) {
	_, err := s.GetContentSize(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, content.ErrContentNotFound), errors.Is(err, content.ErrNotRegularFile):
		return false, nil
	default:
		return false, fmt.Errorf("failed to check content existence: %w", err)
	}
}

func (s *S3ContentStore) WriteContent(ctx context.Context, id content.ContentID, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := s.getObjectKey(id)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		err = wrapError(id, err, "failed to put object to S3")
	}
	s.metrics.ObserveRequest("PutObject", time.Since(start), err)
	if err != nil {
		return err
	}
	s.metrics.RecordBytesStored(int64(len(data)))

	return nil
}

func (s *S3ContentStore) Delete(ctx context.Context, id content.ContentID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key, err := s.getObjectKey(id)
	if err != nil {
		return err
	}

	start := time.Now()
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = wrapError(id, err, "failed to delete object from S3")
	}
	s.metrics.ObserveRequest("DeleteObject", time.Since(start), err)
	if err != nil && !errors.Is(err, content.ErrContentNotFound) {
		return err
	}

	return nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (s *S3ContentStore) Close() error {
	return nil
}

// KeyPrefix returns the configured key prefix.
func (s *S3ContentStore) KeyPrefix() string {
	return s.keyPrefix
}

// Bucket returns the bucket name.
func (s *S3ContentStore) Bucket() string {
	return s.bucket
}

