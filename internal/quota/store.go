package quota

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/receipt-vision/constants"
)

// StoreCounter counts audit entries in the current month.
// The count and the later audit write are separate steps, so concurrent uploads
// by one user can each see limit-1 and all pass.
type StoreCounter struct {
	store  Store
	limit  int
	loc    *time.Location
	logger *slog.Logger
}

func NewStoreCounter(store Store, limit int, loc *time.Location, logger *slog.Logger) *StoreCounter {
	return &StoreCounter{store: store, limit: limit, loc: loc, logger: logger}
}

func (c *StoreCounter) Acquire(ctx context.Context, userID string, now time.Time) (Release, error) {
	from, to := MonthWindow(now, c.loc)
	n, err := c.store.CountInWindow(ctx, userID, constants.ActionUploadReceipt, from, to)
	if err != nil {
		return nil, err
	}
	if n >= c.limit {
		c.logger.Info("quota.rejected", "user_id", userID, "count", n, "limit", c.limit, "backend", "store")
		return nil, exceeded(c.limit)
	}
	return noop, nil
}
