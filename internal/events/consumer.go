package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/joseph-ayodele/receipt-vision/internal/async"
	"github.com/joseph-ayodele/receipt-vision/internal/common"
	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

// HandleFunc processes one decoded upload.
type HandleFunc func(ctx context.Context, up entity.Upload) error

// UploadConsumer feeds deliveries from the uploads queue to a bounded worker pool.
// Each delivery is acked after a successful run and nacked otherwise.
type UploadConsumer struct {
	conn      *amqp.Connection
	queueName string
	handle    HandleFunc
	logger    *slog.Logger
	workers   int
	timeout   time.Duration

	ch     *amqp.Channel
	pool   *async.Queue
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewUploadConsumer(conn *amqp.Connection, queueName string, handle HandleFunc, workers int, timeout time.Duration, logger *slog.Logger) *UploadConsumer {
	if workers <= 0 {
		workers = 1
	}
	return &UploadConsumer{
		conn:      conn,
		queueName: queueName,
		handle:    handle,
		logger:    logger,
		workers:   workers,
		timeout:   timeout,
	}
}

func (c *UploadConsumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel failed: %w", err)
	}
	if err := declareQueue(ch, c.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	// One unacked delivery per worker.
	if err := ch.Qos(c.workers, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set qos failed: %w", err)
	}
	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	c.ch = ch
	c.pool = async.NewQueue(c.run, c.logger,
		async.WithWorkers(c.workers),
		async.WithProcessTimeout(c.timeout),
	)

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-loopCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					c.logger.Warn("events.deliveries_closed", "queue", c.queueName)
					return
				}
				if err := c.pool.Enqueue(loopCtx, jobFor(d, c.logger)); err != nil {
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()

	c.logger.Info("events.consumer_started", "queue", c.queueName, "workers", c.workers)
	return nil
}

// Close stops taking deliveries and waits for in-flight uploads until ctx ends.
func (c *UploadConsumer) Close(ctx context.Context) {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()
	c.pool.Shutdown(ctx)
	if err := c.ch.Close(); err != nil {
		c.logger.Warn("events.channel_close_error", "error", err)
	}
}

func (c *UploadConsumer) run(ctx context.Context, job async.Job) error {
	ev, err := DecodeUploadCreated(job.Body)
	if err != nil {
		return err
	}
	return c.handle(ctx, ev.Upload())
}

func jobFor(d amqp.Delivery, logger *slog.Logger) async.Job {
	job := async.Job{
		ID:          d.MessageId,
		Body:        d.Body,
		Redelivered: d.Redelivered,
	}
	job.Done = func(err error) {
		settle(d, job.Redelivered, err, logger)
	}
	return job
}

// settle acks d on success. Failures are nacked, with a requeue only for a
// transient error on a first delivery.
func settle(d amqp.Delivery, redelivered bool, err error, logger *slog.Logger) {
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Error("events.ack_failed", "message_id", d.MessageId, "error", ackErr)
		}
		return
	}
	requeue := !redelivered && transient(err)
	logger.Warn("events.nack", "message_id", d.MessageId, "requeue", requeue, "error", err)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		logger.Error("events.nack_failed", "message_id", d.MessageId, "error", nackErr)
	}
}

// transient reports failures worth one more delivery attempt.
func transient(err error) bool {
	return errors.Is(err, common.ErrUpstreamUnavailable) ||
		errors.Is(err, common.ErrUpstreamTimeout) ||
		errors.Is(err, common.ErrDatabase) ||
		errors.Is(err, common.ErrStorage) ||
		errors.Is(err, common.ErrImageFetch)
}
