package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
)

// MaxURLTTL is the longest expiry a SigV4 presigned URL accepts.
const MaxURLTTL = 7 * 24 * time.Hour

// refScheme prefixes the stable object references Put returns.
const refScheme = "s3://"

// S3Store implements BlobStore. Put returns an s3://bucket/key reference that is
// stored with the receipt; URL turns it into a presigned GET (or a public URL)
// each time the receipt is read, so the bucket can stay private.
type S3Store struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	ttl        time.Duration
	publicBase string
	logger     *slog.Logger
}

// NewS3Store builds a client from the default AWS chain, overridden by static keys
// and a custom endpoint (MinIO, LocalStack) when configured.
func NewS3Store(ctx context.Context, cfg common.StorageConfig, logger *slog.Logger) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.URLTTL, cfg.PublicBaseURL, logger), nil
}

func newS3Store(client *s3.Client, bucket string, ttl time.Duration, publicBase string, logger *slog.Logger) *S3Store {
	if ttl <= 0 || ttl > MaxURLTTL {
		ttl = MaxURLTTL
	}
	return &S3Store{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     bucket,
		ttl:        ttl,
		publicBase: strings.TrimRight(publicBase, "/"),
		logger:     logger,
	}
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("storage.put_error", "bucket", s.bucket, "key", key, "error", err)
		return "", fmt.Errorf("%w: put %s: %v", common.ErrStorage, key, err)
	}

	s.logger.Info("storage.put",
		"key", key,
		"bytes", len(data),
		"content_type", contentType,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return refScheme + s.bucket + "/" + key, nil
}

// URL resolves a reference returned by Put into a URL a client can fetch.
// References outside this bucket (remote upload URLs, file:// paths) come back unchanged.
func (s *S3Store) URL(ctx context.Context, ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, refScheme+s.bucket+"/")
	if !ok || key == "" {
		return ref, nil
	}
	if s.publicBase != "" {
		u, err := url.JoinPath(s.publicBase, key)
		if err != nil {
			return "", fmt.Errorf("%w: public url %s: %v", common.ErrStorage, key, err)
		}
		return u, nil
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("%w: presign %s: %v", common.ErrStorage, key, err)
	}
	return req.URL, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %v", common.ErrStorage, key, err)
	}
	return nil
}
