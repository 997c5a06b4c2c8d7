package services

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/logger"
)

// Download links stay valid for a day; recipients past that re-run the
// report command to mint a fresh one.
const reportURLExpiry = 24 * time.Hour

// S3ReportStorage uploads finished reports to S3-compatible object storage
// (AWS S3, Cloudflare R2, MinIO) and mints presigned download links.
type S3ReportStorage struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	keyPrefix string
}

var _ ReportSink = (*S3ReportStorage)(nil)

// NewS3ReportStorage builds the storage client. Static credentials from the
// config win when present; otherwise the default AWS credential chain
// (environment, shared config, instance role) is used.
func NewS3ReportStorage(ctx context.Context, cfg config.ReportConfig) (*S3ReportStorage, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("report storage requires a bucket name")
	}

	var client *s3.Client
	if cfg.S3AccessKeyID != "" {
		opts := s3.Options{
			Region:      cfg.S3Region,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		}
		if cfg.S3Endpoint != "" {
			endpoint := cfg.S3Endpoint
			opts.BaseEndpoint = &endpoint
		}
		client = s3.New(opts)
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3Region))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if cfg.S3Endpoint != "" {
				endpoint := cfg.S3Endpoint
				o.BaseEndpoint = &endpoint
			}
		})
	}

	return &S3ReportStorage{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.S3Bucket,
		keyPrefix: cfg.S3KeyPrefix,
	}, nil
}

// validateStorageKey rejects storage keys containing path traversal segments.
func validateStorageKey(key string) error {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return fmt.Errorf("path traversal detected in storage key")
		}
	}
	return nil
}

// Upload stores the report under the configured prefix and returns a
// presigned download URL.
func (s *S3ReportStorage) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	key := filename
	if s.keyPrefix != "" {
		key = path.Join(s.keyPrefix, filename)
	}
	if err := validateStorageKey(key); err != nil {
		return "", err
	}

	contentType := "application/pdf"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", fmt.Errorf("report upload failed: %w", err)
	}

	disposition := fmt.Sprintf("attachment; filename=%q", filename)
	result, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     &s.bucket,
		Key:                        &key,
		ResponseContentDisposition: &disposition,
	}, s3.WithPresignExpires(reportURLExpiry))
	if err != nil {
		return "", fmt.Errorf("report presign failed: %w", err)
	}

	logger.GetLogger().Infow("Report uploaded",
		"bucket", s.bucket,
		"key", key,
		"bytes", len(data))

	return result.URL, nil
}
