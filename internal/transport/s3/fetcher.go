// Package s3 reads source objects from S3-compatible storage.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/kailas-cloud/lexdex/internal/domain"
)

// DefaultMaxObjectBytes caps a fetched object.
const DefaultMaxObjectBytes = 32 << 20

// Config configures the object fetcher.
type Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UsePathStyle   bool
	MaxObjectBytes int64
}

// Fetcher downloads objects from one bucket.
type Fetcher struct {
	client   *s3.Client
	bucket   string
	maxBytes int64
}

// New creates a fetcher. Static credentials are used when both keys are set,
// otherwise the default AWS credential chain.
func New(ctx context.Context, cfg Config) (*Fetcher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return NewWithClient(client, cfg.Bucket, cfg.MaxObjectBytes), nil
}

// NewWithClient wraps an existing S3 client.
func NewWithClient(client *s3.Client, bucket string, maxBytes int64) *Fetcher {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &Fetcher{client: client, bucket: bucket, maxBytes: maxBytes}
}

// Fetch reads the object at key. A missing object is an extraction failure.
func (f *Fetcher) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	key = strings.TrimPrefix(key, "/")
	resp, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, "", domain.Reasonf(domain.ReasonExtractionFailed, "object %q not found", key)
		}
		return nil, "", fmt.Errorf("get object %q: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.ContentLength != nil && *resp.ContentLength > f.maxBytes {
		return nil, "", domain.Reasonf(domain.ReasonExtractionFailed,
			"object %q is %d bytes, limit %d", key, *resp.ContentLength, f.maxBytes)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read object %q: %w", key, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, "", domain.Reasonf(domain.ReasonExtractionFailed, "object %q exceeds %d bytes", key, f.maxBytes)
	}
	return data, aws.ToString(resp.ContentType), nil
}
