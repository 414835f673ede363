package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"fundflow/config"
)

// Attachment is the stored-object reference handed back to callers: an
// opaque identifier plus a URL the dashboards can render.
type Attachment struct {
	Identifier string
	URL        string
}

// InvoiceStore uploads contingency-form invoices to object storage.
type InvoiceStore struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewInvoiceStore(cfg *config.MinioConfig) (*InvoiceStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &InvoiceStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *InvoiceStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// Upload stores one invoice binary and returns its attachment reference.
func (s *InvoiceStore) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (Attachment, error) {
	_, err := s.client.PutObject(ctx, s.bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to upload file: %w", err)
	}

	url, err := s.presignedURL(ctx, objectName)
	if err != nil {
		return Attachment{}, err
	}

	return Attachment{Identifier: objectName, URL: url}, nil
}

// presignedURL generates a presigned URL for the object with expiration.
func (s *InvoiceStore) presignedURL(ctx context.Context, objectName string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// Delete removes a stored invoice object.
func (s *InvoiceStore) Delete(ctx context.Context, objectName string) error {
	err := s.client.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
