package gcs

import (
	"context"
	"time"
)

// Object describes one stored object.
type Object struct {
	Name    string
	Size    int64
	Created time.Time
}

// StorageService is the slice of Cloud Storage the backups use.
type StorageService interface {
	// UploadBytes writes data to bucketName/objectName, replacing any existing object.
	UploadBytes(ctx context.Context, bucketName, objectName string, data []byte, contentType string) error

	// FetchFromGCS downloads an object by its gs:// URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)

	// ListObjects lists the objects under prefix, in name order.
	ListObjects(ctx context.Context, bucketName, prefix string) ([]Object, error)
}
