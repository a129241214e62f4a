package upload

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipt-vision/internal/quota"
)

// Validator applies the size and monthly quota policy shared by both upload paths.
type Validator struct {
	maxBytes int
	counter  quota.Counter
	logger   *slog.Logger
}

func NewValidator(maxBytes int, counter quota.Counter, logger *slog.Logger) *Validator {
	return &Validator{maxBytes: maxBytes, counter: counter, logger: logger}
}

// MaxBytes returns the configured image size limit.
func (v *Validator) MaxBytes() int {
	return v.maxBytes
}

// CheckSize rejects images larger than the configured limit.
func (v *Validator) CheckSize(n int) error {
	if n <= v.maxBytes {
		return nil
	}
	v.logger.Info("upload.rejected_size", "bytes", n, "limit", v.maxBytes)
	return TooLarge(v.maxBytes)
}

// Admit reserves one upload for userID in the month containing now.
// The returned release must be called if the upload does not complete.
func (v *Validator) Admit(ctx context.Context, userID string, now time.Time) (quota.Release, error) {
	return v.counter.Acquire(ctx, userID, now)
}

func formatMB(n int) string {
	mb := float64(n) / (1024 * 1024)
	if mb == float64(int(mb)) {
		return fmt.Sprintf("%d MB", int(mb))
	}
	return fmt.Sprintf("%.1f MB", mb)
}
