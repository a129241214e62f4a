package async

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestQueue_DoneReceivesHandlerResult(t *testing.T) {
	boom := errors.New("boom")
	q := NewQueue(func(_ context.Context, job Job) error {
		switch job.ID {
		case "fail":
			return boom
		case "panic":
			panic("bad job")
		}
		return nil
	}, discard(), WithWorkers(2))

	var (
		mu      sync.Mutex
		results = map[string]error{}
		wg      sync.WaitGroup
	)
	for _, id := range []string{"ok", "fail", "panic"} {
		wg.Add(1)
		id := id
		err := q.Enqueue(context.Background(), Job{ID: id, Done: func(err error) {
			mu.Lock()
			results[id] = err
			mu.Unlock()
			wg.Done()
		}})
		if err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	wg.Wait()
	q.Shutdown(context.Background())

	if results["ok"] != nil {
		t.Errorf("ok: %v", results["ok"])
	}
	if !errors.Is(results["fail"], boom) {
		t.Errorf("fail: %v", results["fail"])
	}
	if results["panic"] == nil {
		t.Error("panic should be reported as an error")
	}
}

func TestQueue_BoundedConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	q := NewQueue(func(context.Context, Job) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}, discard(), WithWorkers(3))

	for i := 0; i < 20; i++ {
		if err := q.Enqueue(context.Background(), Job{ID: "j"}); err != nil {
			t.Fatal(err)
		}
	}
	q.Shutdown(context.Background())

	if p := peak.Load(); p > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", p)
	}
}

func TestQueue_HandlerTimeout(t *testing.T) {
	done := make(chan error, 1)
	q := NewQueue(func(ctx context.Context, _ Job) error {
		<-ctx.Done()
		return ctx.Err()
	}, discard(), WithWorkers(1), WithProcessTimeout(10*time.Millisecond))
	defer q.Shutdown(context.Background())

	if err := q.Enqueue(context.Background(), Job{ID: "slow", Done: func(err error) { done <- err }}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("want deadline exceeded, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not cancelled")
	}
}

func TestQueue_EnqueueAfterShutdown(t *testing.T) {
	q := NewQueue(func(context.Context, Job) error { return nil }, discard())
	q.Shutdown(context.Background())
	if err := q.Enqueue(context.Background(), Job{ID: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("want ErrClosed, got %v", err)
	}
}

func TestQueue_EnqueueStampsSubmittedAt(t *testing.T) {
	got := make(chan Job, 1)
	q := NewQueue(func(_ context.Context, job Job) error {
		got <- job
		return nil
	}, discard(), WithWorkers(1))
	defer q.Shutdown(context.Background())

	before := time.Now()
	if err := q.Enqueue(context.Background(), Job{ID: "j1", Redelivered: true}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	job := <-got
	if job.SubmittedAt.Before(before) {
		t.Errorf("SubmittedAt = %v, want >= %v", job.SubmittedAt, before)
	}
	if !job.Redelivered {
		t.Error("Redelivered flag lost")
	}
}
