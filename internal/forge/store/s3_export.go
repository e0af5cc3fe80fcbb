package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// S3ExportStoreConfig configures an S3-compatible export archive, mirroring
// artifacts.S3StoreConfig's shape (bucket/region/endpoint/credentials/path
// style) one field for one field.
type S3ExportStoreConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// DefaultS3ExportStoreConfig returns the default configuration.
func DefaultS3ExportStoreConfig() *S3ExportStoreConfig {
	return &S3ExportStoreConfig{Region: "us-east-1"}
}

// S3ExportStore archives CRYSTALLIZE markdown documents to an S3-compatible
// bucket instead of a database row, for deployments that want the exported
// artifact durable independently of the session database (SPEC_FULL.md
// §4.14's AWS S3 wiring). It implements the same ExportStore interface as
// PostgresStore/SQLiteStore's built-in export tables, so ForgeServer can be
// constructed with either without changing any handler code.
type S3ExportStore struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3ExportStore creates a new S3-backed export store.
func NewS3ExportStore(ctx context.Context, cfg *S3ExportStoreConfig) (*S3ExportStore, error) {
	if cfg == nil {
		cfg = DefaultS3ExportStoreConfig()
	}

	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3ExportStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// CreateExport uploads markdown under a fresh export id and returns it.
func (s *S3ExportStore) CreateExport(ctx context.Context, sessionID, markdown string) (string, error) {
	exportID := uuid.NewString()
	key := s.objectKey(exportID)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        strings.NewReader(markdown),
		ContentType: aws.String("text/markdown; charset=utf-8"),
		Metadata:    map[string]string{"session_id": sessionID},
	})
	if err != nil {
		return "", fmt.Errorf("s3 put export: %w", err)
	}
	return exportID, nil
}

// GetExport downloads the markdown stored under exportID.
func (s *S3ExportStore) GetExport(ctx context.Context, exportID string) (string, error) {
	key := s.objectKey(exportID)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NotFound
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
			return "", ErrNotFound
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && strings.EqualFold(apiErr.ErrorCode(), "NotFound") {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("s3 get export: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return "", fmt.Errorf("read export body: %w", err)
	}
	return string(data), nil
}

func (s *S3ExportStore) objectKey(exportID string) string {
	if s.prefix == "" {
		return exportID
	}
	return path.Join(s.prefix, exportID)
}
