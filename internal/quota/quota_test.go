package quota

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/receipt-vision/constants"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/redis/go-redis/v9"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestMonthWindow(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	tests := []struct {
		name      string
		now       time.Time
		loc       *time.Location
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "mid month utc",
			now:       time.Date(2024, 2, 15, 13, 0, 0, 0, time.UTC),
			loc:       time.UTC,
			wantStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "last second of december",
			now:       time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC),
			loc:       nil,
			wantStart: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "utc instant already next month in utc but not in new york",
			now:       time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC),
			loc:       ny,
			wantStart: time.Date(2024, 3, 1, 0, 0, 0, 0, ny),
			wantEnd:   time.Date(2024, 4, 1, 0, 0, 0, 0, ny),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := MonthWindow(tt.now, tt.loc)
			if !start.Equal(tt.wantStart) || !end.Equal(tt.wantEnd) {
				t.Errorf("MonthWindow = [%v, %v), want [%v, %v)", start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

type fakeStore struct {
	n        int
	err      error
	from, to time.Time
}

func (f *fakeStore) CountInWindow(_ context.Context, _ string, _ constants.RequestAction, from, to time.Time) (int, error) {
	f.from, f.to = from, to
	return f.n, f.err
}

func TestStoreCounter(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		count   int
		wantErr error
	}{
		{name: "under limit", count: 9},
		{name: "at limit", count: 10, wantErr: common.ErrQuotaExceeded},
		{name: "over limit", count: 12, wantErr: common.ErrQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{n: tt.count}
			c := NewStoreCounter(store, 10, time.UTC, discard())
			release, err := c.Acquire(context.Background(), "u1", now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				want := "Monthly upload limit exceeded. You can only upload 10 receipts per month."
				if got := common.UserMessage(err); got != want {
					t.Errorf("message = %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			release(context.Background())
			if !store.from.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) || !store.to.Equal(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)) {
				t.Errorf("window = [%v, %v)", store.from, store.to)
			}
		})
	}
}

type fakeRedis struct {
	mu   sync.Mutex
	vals map[string]int64
}

func (f *fakeRedis) Exists(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.vals[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.vals[key] = int64(value.(int))
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[key]++
	return redis.NewIntResult(f.vals[key], nil)
}

func (f *fakeRedis) Decr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[key]--
	return redis.NewIntResult(f.vals[key], nil)
}

func TestRedisCounter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	rdb := &fakeRedis{vals: map[string]int64{}}
	c := newRedisCounter(rdb, &fakeStore{n: 8}, 10, time.UTC, discard())
	key := Key("u1", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	if key != "quota:upload_receipt:u1:2024-03" {
		t.Fatalf("key = %s", key)
	}

	// Seeded with 8 from the store: two more fit.
	if _, err := c.Acquire(ctx, "u1", now); err != nil {
		t.Fatalf("9th: %v", err)
	}
	release, err := c.Acquire(ctx, "u1", now)
	if err != nil {
		t.Fatalf("10th: %v", err)
	}
	if _, err := c.Acquire(ctx, "u1", now); !errors.Is(err, common.ErrQuotaExceeded) {
		t.Fatalf("11th: want ErrQuotaExceeded, got %v", err)
	}
	if rdb.vals[key] != 10 {
		t.Errorf("counter after rejection = %d, want 10", rdb.vals[key])
	}

	// A failed upload gives its slot back.
	release(ctx)
	if _, err := c.Acquire(ctx, "u1", now); err != nil {
		t.Fatalf("after release: %v", err)
	}
}

func TestRedisCounter_ConcurrentAcquireNeverOvershoots(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	c := newRedisCounter(&fakeRedis{vals: map[string]int64{}}, &fakeStore{}, 10, time.UTC, discard())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Acquire(ctx, "u1", now); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != 10 {
		t.Errorf("admitted = %d, want 10", admitted)
	}
}
