// Package storage keeps receipt images in an S3-compatible bucket or a local directory.
package storage

import (
	"context"
	"path"
	"strings"

	"github.com/google/uuid"
)

// BlobStore stores image bytes and hands back the reference kept on the receipt record.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ObjectKey returns a fresh key of the form <prefix>/<userID>/<uuid>.
func ObjectKey(prefix, userID string) string {
	return path.Join(strings.Trim(prefix, "/"), userID, uuid.NewString())
}
