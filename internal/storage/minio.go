package storage

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Compile-time check that MinIOStorage implements Uploader.
var _ Uploader = (*MinIOStorage)(nil)

// MinIOConfig holds the configuration for MinIO storage.
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	Region        string
	UseSSL        bool
	PublicBaseURL string // Optional: base of the returned URLs
}

// MinIOStorage uploads renders to a MinIO server.
type MinIOStorage struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

// NewMinIOStorage creates a new MinIOStorage instance.
func NewMinIOStorage(cfg MinIOConfig) (*MinIOStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create MinIO client: %w", err)
	}

	base := cfg.PublicBaseURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
	}

	return &MinIOStorage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: base,
	}, nil
}

// Upload uploads the file at localPath to key and returns its URL.
func (s *MinIOStorage) Upload(ctx context.Context, localPath, key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}

	_, err = s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: ContentTypeFor(localPath),
	})
	if err != nil {
		return "", fmt.Errorf("upload to MinIO: %w", err)
	}

	return joinURL(s.publicBaseURL, key), nil
}
