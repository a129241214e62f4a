package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/receipt-vision/internal/common"
)

// LocalStore implements BlobStore on a directory and returns file:// URLs.
// It backs the batch CLI, where nothing remote needs to read the images.
type LocalStore struct {
	root   string
	logger *slog.Logger
}

func NewLocalStore(root string, logger *slog.Logger) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", common.ErrStorage, abs, err)
	}
	return &LocalStore{root: abs, logger: logger}, nil
}

func (s *LocalStore) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("%w: put %s: %v", common.ErrStorage, key, err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return "", fmt.Errorf("%w: put %s: %v", common.ErrStorage, key, err)
	}
	s.logger.Debug("storage.put", "key", key, "bytes", len(data), "content_type", contentType)
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String(), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(key)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: delete %s: %v", common.ErrStorage, key, err)
	}
	return nil
}
