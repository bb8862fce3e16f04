// Package events listens for table status changes published by the
// point-of-sale and check-in subsystems and refreshes the map sessions of
// the affected event. The map never writes statuses itself.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/venue-console/opmap/internal/models"
)

// DefaultQueue is the durable queue status changes are published to.
const DefaultQueue = "table.status.changed"

// StatusChanged is the message payload.
type StatusChanged struct {
	EventID   string `json:"event_id"`
	TableID   string `json:"table_id"`
	Status    string `json:"status"`
	ChangedAt string `json:"changed_at"`
}

// Refresher reloads every session bound to an event and returns how many
// sessions it touched.
type Refresher interface {
	RefreshEvent(eventID string) int
}

// Consumer consumes StatusChanged messages with a reconnect loop.
type Consumer struct {
	url    string
	queue  string
	target Refresher
	logger *slog.Logger
}

// NewConsumer creates a consumer. An empty queue uses DefaultQueue.
func NewConsumer(url, queue string, target Refresher, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{url: url, queue: queue, target: target, logger: logger.With("component", "status-consumer")}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff capped at 30s.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("failed to dial broker", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.logger.Info("consuming status changes", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.Body); err != nil {
				c.logger.Warn("handle message failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message and refreshes the sessions of its event.
func (c *Consumer) Handle(body []byte) error {
	var msg StatusChanged
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	msg.EventID = strings.TrimSpace(msg.EventID)
	if msg.EventID == "" {
		return errors.New("message without event_id")
	}
	if msg.Status != "" {
		if _, err := models.ParseTableStatus(msg.Status); err != nil {
			return err
		}
	}

	n := c.target.RefreshEvent(msg.EventID)
	c.logger.Debug("status change", "event_id", msg.EventID, "table_id", msg.TableID,
		"status", msg.Status, "sessions", n)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
