// Package storage provides the object-store collaborator used for job
// artifacts and download staging.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/jmylchreest/clipd/internal/config"
)

// DefaultPresignTTL is used when the configured TTL is zero.
const DefaultPresignTTL = 2 * time.Hour

// ObjectStore is the surface the worker and downloader depend on.
type ObjectStore interface {
	EnsureBucket(ctx context.Context, name string) error
	Put(ctx context.Context, bucket, key string, data []byte) error
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, bucket, key string) error
}

// S3Store is the S3-compatible implementation of ObjectStore. With a
// custom endpoint it talks path-style, which MinIO expects.
type S3Store struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	presignTTL time.Duration
	logger     *slog.Logger
}

// NewS3Store builds an S3Store from storage configuration.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (*S3Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	configOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		configOpts = append(configOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, clientOpts...)
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}

	return &S3Store{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		presignTTL: ttl,
		logger:     logger,
	}, nil
}

// PresignTTL returns the store's default presign lifetime.
func (s *S3Store) PresignTTL() time.Duration {
	return s.presignTTL
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *S3Store) EnsureBucket(ctx context.Context, name string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(name)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		// HeadBucket on some S3-compatible stores reports absence as a
		// generic 404 API error; fall through to creation and let it
		// surface real permission failures.
		s.logger.Debug("head bucket failed, attempting create",
			slog.String("bucket", name), slog.String("error", err.Error()))
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", name, err)
	}
	s.logger.Info("created bucket", slog.String("bucket", name))
	return nil
}

// Put uploads an artifact.
func (s *S3Store) Put(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("uploading %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for an object. A zero ttl
// uses the store default.
func (s *S3Store) PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.presignTTL
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// Delete removes an object.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", bucket, key, err)
	}
	return nil
}
