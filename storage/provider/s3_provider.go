package provider

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	platformconfig "github.com/plumehq/plume/internal/platform/config"
)

// s3Provider implements BlobProvider against any S3-compatible store using
// the AWS S3 SDK.
type s3Provider struct {
	s3Client *s3.Client
	bucket   string
}

// NewS3Provider creates a new S3 provider from configuration. Transient
// failures are retried inside the SDK up to cfg.MaxRetries attempts with
// capped exponential backoff.
func NewS3Provider(cfg *platformconfig.StorageConfig) (BlobProvider, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("STORAGE_ACCESS_KEY_ID and STORAGE_SECRET_ACCESS_KEY are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("STORAGE_BUCKET is required")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(cfg.MaxRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// Most S3-compatible stores require path-style addressing.
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &s3Provider{
		s3Client: s3Client,
		bucket:   cfg.Bucket,
	}, nil
}

// Put uploads a blob under key.
func (p *s3Provider) Put(ctx context.Context, key string, contentType string, data []byte) error {
	_, err := p.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Delete removes the blob under key. S3 treats deleting a missing key as
// success, which matches the adapter contract.
func (p *s3Provider) Delete(ctx context.Context, key string) error {
	_, err := p.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
