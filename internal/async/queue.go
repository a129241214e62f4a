package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrClosed is returned by Enqueue after Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Job is one unit of work handed to the pool.
type Job struct {
	ID          string
	Body        []byte
	Redelivered bool
	SubmittedAt time.Time
	// Done is called exactly once with the handler's result.
	Done func(err error)
}

// Handler processes one job.
type Handler func(ctx context.Context, job Job) error

// Queue runs a Handler on a fixed number of workers, each handling one job at a time.
type Queue struct {
	handle  Handler
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(handle Handler, logger *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		handle:  handle,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan Job),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.run(workerID, job)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) run(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	wait := start.Sub(job.SubmittedAt)
	err := q.safeHandle(ctx, job)
	if err != nil {
		q.logger.Error("job failed", "worker_id", workerID, "job_id", job.ID, "error", err,
			"redelivered", job.Redelivered, "wait_ms", wait.Milliseconds(),
			"elapsed_ms", time.Since(start).Milliseconds())
	} else {
		q.logger.Info("job done", "worker_id", workerID, "job_id", job.ID,
			"wait_ms", wait.Milliseconds(),
			"elapsed_ms", time.Since(start).Milliseconds())
	}
	if job.Done != nil {
		job.Done(err)
	}
}

func (q *Queue) safeHandle(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", "job_id", job.ID, "panic", r)
			err = errors.New("job panicked")
		}
	}()
	return q.handle(ctx, job)
}

// Enqueue blocks until a worker (or buffer slot) takes the job or ctx ends.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID)
		return ErrClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs and waits for in-flight ones until ctx ends.
func (q *Queue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
