package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/joseph-ayodele/receipt-vision/internal/entity"
)

// UploadPublisher publishes UploadCreated messages as persistent JSON.
type UploadPublisher struct {
	conn      *amqp.Connection
	queueName string
	logger    *slog.Logger
}

func NewUploadPublisher(conn *amqp.Connection, queueName string, logger *slog.Logger) *UploadPublisher {
	return &UploadPublisher{conn: conn, queueName: queueName, logger: logger}
}

func (p *UploadPublisher) PublishUploadCreated(ctx context.Context, up entity.Upload) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declareQueue(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(newUploadCreated(up))
	if err != nil {
		return fmt.Errorf("marshal upload event failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    up.ID,
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish upload event failed: %w", err)
	}
	p.logger.Info("events.published", "queue", p.queueName, "upload_id", up.ID)
	return nil
}
