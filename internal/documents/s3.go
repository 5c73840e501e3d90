package documents

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/rentops/internal/config"
)

// s3Client defines the minimal minio.Client operations used by S3Storage.
// This interface enables testing with mock implementations.
type s3Client interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	RemoveObject(ctx context.Context, bucket, key string) error
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client interface.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := w.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (w *minioClientWrapper) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	obj, err := w.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapS3Error(err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller
	// starts streaming.
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, mapS3Error(err)
	}
	return obj, nil
}

func (w *minioClientWrapper) RemoveObject(ctx context.Context, bucket, key string) error {
	return mapS3Error(w.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}))
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, key, expiry, params)
}

func mapS3Error(err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

// S3Storage stores documents in an S3-compatible bucket.
type S3Storage struct {
	client    s3Client
	bucket    string
	urlExpiry time.Duration
}

var (
	_ Storage   = (*S3Storage)(nil)
	_ Presigner = (*S3Storage)(nil)
)

// NewS3Storage creates a minio-backed storage for cfg.Bucket.
func NewS3Storage(cfg config.S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}
	endpoint := stripScheme(cfg.Endpoint, &useSSL)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	expiry := time.Duration(cfg.URLExpiry)
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Storage{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
	}, nil
}

// Save uploads r under key.
func (s *S3Storage) Save(ctx context.Context, key string, r io.Reader, size int64, mimeType string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if err := s.client.PutObject(ctx, s.bucket, key, r, size, mimeType); err != nil {
		return fmt.Errorf("upload document to S3: %w", err)
	}
	return nil
}

// Open streams the object stored under key.
func (s *S3Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		if err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("get document from S3: %w", err)
	}
	return rc, nil
}

// Delete removes the object stored under key. S3 deletes are idempotent, so
// a missing key is not reported.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key); err != nil {
		if err == ErrNotFound {
			return nil
		}
		return fmt.Errorf("delete document from S3: %w", err)
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL that downloads the object as
// filename.
func (s *S3Storage) PresignedURL(ctx context.Context, key, filename string) (string, time.Time, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlExpiry, params)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	expiry := time.Now().Add(s.urlExpiry)
	return presigned.String(), expiry, nil
}

// stripScheme removes an http:// or https:// prefix from endpoint, which
// minio.New rejects, and sets useSSL to match an explicit scheme.
func stripScheme(endpoint string, useSSL *bool) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		*useSSL = true
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "https://"), "/")
	case strings.HasPrefix(endpoint, "http://"):
		*useSSL = false
		return strings.TrimSuffix(strings.TrimPrefix(endpoint, "http://"), "/")
	default:
		return endpoint
	}
}
