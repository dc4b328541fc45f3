package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-ledger/internal/gcs"
)

// Re-export interface from shared package.
type StorageService = gcs.StorageService

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage through one shared client.
// It assumes Application Default Credentials are configured.
type GCSStorageService struct {
	client *storage.Client
}

// NewGCSStorageService creates a storage client.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close closes the storage client.
func (s *GCSStorageService) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// UploadBytes delegates to UploadBytesWithClient.
func (s *GCSStorageService) UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error {
	return UploadBytesWithClient(ctx, s.client, bucketName, objectName, data, contentType)
}

// FetchFromGCS delegates to FetchFromGCSWithClient.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	return FetchFromGCSWithClient(ctx, s.client, gcsURI)
}

// ListObjects delegates to ListObjectsWithClient.
func (s *GCSStorageService) ListObjects(ctx context.Context, bucketName, prefix string) ([]gcs.Object, error) {
	return ListObjectsWithClient(ctx, s.client, bucketName, prefix)
}

var _ StorageService = (*GCSStorageService)(nil)
