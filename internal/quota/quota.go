// Package quota enforces the per-user monthly upload limit.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/joseph-ayodele/receipt-vision/constants"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
)

// Release gives back a slot taken by Acquire when the upload does not complete.
type Release func(ctx context.Context)

// Counter admits or rejects one more upload for a user in the month containing now.
type Counter interface {
	Acquire(ctx context.Context, userID string, now time.Time) (Release, error)
}

// Store is the audit-log view the counters read from.
type Store interface {
	CountInWindow(ctx context.Context, userID string, action constants.RequestAction, from, to time.Time) (int, error)
}

// MonthWindow returns [first instant of the month, first instant of the next month)
// for now as seen in loc.
func MonthWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}

func exceeded(limit int) error {
	return common.NewAppError("QUOTA_EXCEEDED",
		fmt.Sprintf("Monthly upload limit exceeded. You can only upload %d receipts per month.", limit),
		common.ErrQuotaExceeded)
}

func noop(context.Context) {}
