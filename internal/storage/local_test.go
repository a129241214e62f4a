package storage

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"testing"
)

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}

	key := ObjectKey("uploads", "u1")
	if !strings.HasPrefix(key, "uploads/u1/") {
		t.Fatalf("key = %s", key)
	}
	raw, err := store.Put(ctx, key, []byte("img"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		t.Fatalf("url = %s (%v)", raw, err)
	}
	got, err := os.ReadFile(u.Path)
	if err != nil || string(got) != "img" {
		t.Fatalf("stored = %q, %v", got, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("second Delete: %v", err)
	}
	if _, err := os.Stat(u.Path); !os.IsNotExist(err) {
		t.Errorf("file still present: %v", err)
	}
}
