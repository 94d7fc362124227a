package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"siyuan-ocr/internal/ocr"
)

// S3Options configures an S3AssetStore.
type S3Options struct {
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Endpoint targets an S3-compatible service (MinIO, R2). Requests then use
	// path-style addressing.
	Endpoint string
}

// S3AssetStore uploads assets to a bucket and returns their public URL.
type S3AssetStore struct {
	uploader *manager.Uploader
	region   string
	bucket   string
	endpoint string
	logger   *slog.Logger
}

func NewS3AssetStore(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3AssetStore, error) {
	if opts.AccessKey == "" || opts.SecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(
		ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimSuffix(opts.Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Info("s3 asset store ready", "bucket", opts.Bucket, "region", opts.Region, "endpoint", endpoint)

	return &S3AssetStore{
		uploader: manager.NewUploader(client),
		region:   opts.Region,
		bucket:   opts.Bucket,
		endpoint: endpoint,
		logger:   logger,
	}, nil
}

// UploadAsset stores data under assets/<filename>.
func (s *S3AssetStore) UploadAsset(ctx context.Context, data []byte, filename string) (string, error) {
	key := path.Join("assets", path.Base("/"+filename))

	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := s.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(ocr.MimeType(filename)),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}
	return s.objectURL(key), nil
}

func (s *S3AssetStore) objectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
