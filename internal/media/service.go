// Package media issues presigned object-storage URLs for attachment
// upload and download. Objects live in a single bucket keyed by media
// id; the API never proxies file bytes.
package media

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const presignExpiry = 15 * time.Minute

// Config holds object storage settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Service provides presigned upload and download URLs.
type Service struct {
	client *minio.Client
	bucket string
}

// NewService connects to the object store and ensures the bucket exists.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Service{client: client, bucket: cfg.Bucket}, nil
}

// UploadURL returns a presigned PUT URL for a new object.
func (s *Service) UploadURL(ctx context.Context, mediaID string) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, mediaID, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return u.String(), nil
}

// DownloadURL returns a presigned GET URL. The response is served with
// the original filename via a content-disposition override.
func (s *Service) DownloadURL(ctx context.Context, mediaID, filename string) (string, error) {
	params := url.Values{}
	if filename != "" {
		params.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, mediaID, presignExpiry, params)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}

// ObjectSize stats an uploaded object; used to finalize a media record
// after the client reports the upload is done.
func (s *Service) ObjectSize(ctx context.Context, mediaID string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, mediaID, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("stat object: %w", err)
	}
	return info.Size, nil
}

// Delete removes an object; ignores missing objects.
func (s *Service) Delete(ctx context.Context, mediaID string) error {
	err := s.client.RemoveObject(ctx, s.bucket, mediaID, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}
