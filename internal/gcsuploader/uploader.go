package gcsuploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/finance-ledger/internal/gcs"
	"google.golang.org/api/iterator"
)

// UploadBytesWithClient writes data to a GCS bucket under the given object name.
func UploadBytesWithClient(ctx context.Context, client *storage.Client, bucketName, objectName string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := client.Bucket(bucketName).Object(objectName).NewWriter(ctx)
	w.ContentType = contentType
	defer func() {
		// Ensure the writer is closed even on early returns
		_ = w.Close()
	}()

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("copy data to GCS writer: %w", err)
	}

	// Close to finalize the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize upload: %w", err)
	}
	return nil
}

// FetchFromGCSWithClient downloads the file bytes from the given GCS URI.
func FetchFromGCSWithClient(ctx context.Context, client *storage.Client, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: %w", err)
	}

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("fetchFromGCS: reading bytes: %w", err)
	}
	return data, nil
}

// ListObjectsWithClient lists the objects under prefix. The API returns them in name order.
func ListObjectsWithClient(ctx context.Context, client *storage.Client, bucketName, prefix string) ([]gcs.Object, error) {
	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []gcs.Object
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("listObjects: %s/%s: %w", bucketName, prefix, err)
		}
		out = append(out, gcs.Object{Name: attrs.Name, Size: attrs.Size, Created: attrs.Created})
	}
	return out, nil
}

// ParseGCSURI splits "gs://bucket/path/to/object" into bucket and object path.
func ParseGCSURI(gcsURI string) (bucket, object string, err error) {
	if !strings.HasPrefix(gcsURI, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	parts := strings.SplitN(strings.TrimPrefix(gcsURI, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return parts[0], parts[1], nil
}

// URI builds the gs:// URI of an object.
func URI(bucketName, objectName string) string {
	return "gs://" + bucketName + "/" + objectName
}
