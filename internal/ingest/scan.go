// Package ingest discovers receipt images on the local filesystem.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// AllowedExts are the image extensions picked up by a scan (lowercase, without '.').
var AllowedExts = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
}

// File is one image found by ScanDir.
type File struct {
	Path    string
	Ext     string
	Size    int64
	HashHex string
	Data    []byte
}

// Result is the per-path outcome of a scan.
type Result struct {
	File         *File
	Path         string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory scan.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// NormalizeExt lowercases ext and strips the leading dot.
func NormalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// AllowedExt reports whether ext names a supported image type.
func AllowedExt(ext string) bool {
	_, ok := AllowedExts[NormalizeExt(ext)]
	return ok
}

// IsHidden reports whether the base name starts with '.'.
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

// ScanDir walks root and reads every supported image. Files whose content hash
// was already seen in this scan are reported as deduplicated and not returned again.
// Files larger than maxBytes are reported as failed; maxBytes <= 0 disables the check.
func ScanDir(root string, skipHidden bool, maxBytes int64, logger *slog.Logger) ([]Result, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []Result
	var stats DirStats
	seen := make(map[string]string)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			results = append(results, Result{Path: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		f, err := readFile(path, maxBytes)
		if err != nil {
			logger.Warn("ingest.read_failed", "path", path, "error", err)
			results = append(results, Result{Path: path, Err: err.Error()})
			stats.Failed++
			return nil
		}
		if first, dup := seen[f.HashHex]; dup {
			logger.Info("ingest.duplicate", "path", path, "first", first)
			results = append(results, Result{Path: path, Deduplicated: true})
			stats.Deduplicated++
			return nil
		}
		seen[f.HashHex] = path
		results = append(results, Result{Path: path, File: f})
		stats.Succeeded++
		return nil
	})
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}

	logger.Info("ingest.scan_done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

func readFile(path string, maxBytes int64) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), maxBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	return &File{
		Path:    path,
		Ext:     NormalizeExt(filepath.Ext(path)),
		Size:    int64(len(data)),
		HashHex: hex.EncodeToString(sum[:]),
		Data:    data,
	}, nil
}
