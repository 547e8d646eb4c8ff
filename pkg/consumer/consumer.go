// Package consumer subscribes to candidate change events on a RabbitMQ topic
// exchange and drives the indexer. Processing is at-least-once: messages are
// acked only after both stores accept the write, and any processing failure
// dead-letters the message rather than requeueing it, so a poison message can
// never loop.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/hireloop/talentsearch/pkg/candidate"
	"github.com/hireloop/talentsearch/pkg/observability"
)

const (
	routingKeyCreated = "candidate.created"
	routingKeyUpdated = "candidate.updated"
	routingKeyDeleted = "candidate.deleted"

	bindingPattern = "candidate.*"

	connectAttempts = 5
)

// EventIndexer is the slice of the indexer the consumer dispatches to.
type EventIndexer interface {
	Upsert(ctx context.Context, c candidate.Candidate) error
	Delete(ctx context.Context, id string) error
}

type Consumer struct {
	url      string
	exchange string
	indexer  EventIndexer
	metrics  *observability.Recorder

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	cancel context.CancelFunc
	done   chan struct{}
}

func New(url, exchange string, indexer EventIndexer, metrics *observability.Recorder) *Consumer {
	return &Consumer{
		url:      url,
		exchange: exchange,
		indexer:  indexer,
		metrics:  metrics,
		done:     make(chan struct{}),
	}
}

// Start connects with backoff, declares the topology, and launches the
// consume loop. It returns once the loop is running.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		return err
	}

	deliveries, err := c.declareTopology()
	if err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.consumeLoop(loopCtx, deliveries)
	slog.Info("consumer started", "exchange", c.exchange, "binding", bindingPattern)
	return nil
}

// connect dials the bus with exponential backoff: up to connectAttempts
// attempts, waiting 2^attempt seconds between them.
func (c *Consumer) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<attempt) * time.Second
			slog.Warn("bus connection failed, retrying",
				"attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, err := amqp.Dial(c.url)
		if err != nil {
			lastErr = err
			continue
		}

		ch, err := conn.Channel()
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.ch = ch
		c.mu.Unlock()
		slog.Info("connected to message bus")
		return nil
	}
	return fmt.Errorf("failed to connect to message bus after %d attempts: %w", connectAttempts, lastErr)
}

// declareTopology sets up the exchange, the dead-letter pair, and the durable
// consume queue, then opens the delivery stream with prefetch 1.
func (c *Consumer) declareTopology() (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	ch := c.ch
	c.mu.Unlock()

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", c.exchange, err)
	}

	dlx := c.exchange + ".dlx"
	if err := ch.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter exchange %s: %w", dlx, err)
	}

	dlq := c.exchange + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare dead-letter queue %s: %w", dlq, err)
	}
	if err := ch.QueueBind(dlq, "#", dlx, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind dead-letter queue: %w", err)
	}

	queue, err := ch.QueueDeclare("", true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": dlx,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to declare consume queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, bindingPattern, c.exchange, false, nil); err != nil {
		return nil, fmt.Errorf("failed to bind consume queue: %w", err)
	}

	// Prefetch 1 serializes processing, which is what gives per-candidate
	// event ordering on a single consumer.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(c.done)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				slog.Warn("delivery channel closed")
				return
			}
			c.handle(ctx, d)
		}
	}
}

// handle dispatches one delivery. Any failure rejects without requeue so the
// broker dead-letters the message.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	outcome, err := c.process(ctx, d)
	c.metrics.RecordConsumed(ctx, d.RoutingKey, outcome)

	if err != nil {
		slog.Error("message dead-lettered",
			"routing_key", d.RoutingKey, "outcome", outcome, "error", err)
		if nackErr := d.Nack(false, false); nackErr != nil {
			slog.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		slog.Error("failed to ack message", "error", ackErr)
	}
}

func (c *Consumer) process(ctx context.Context, d amqp.Delivery) (string, error) {
	switch d.RoutingKey {
	case routingKeyCreated, routingKeyUpdated:
		var cand candidate.Candidate
		if err := json.Unmarshal(d.Body, &cand); err != nil {
			return "malformed", fmt.Errorf("failed to decode candidate payload: %w", err)
		}
		if err := c.indexer.Upsert(ctx, cand); err != nil {
			return "error", err
		}
		return "ok", nil

	case routingKeyDeleted:
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(d.Body, &payload); err != nil {
			return "malformed", fmt.Errorf("failed to decode delete payload: %w", err)
		}
		if payload.ID == "" {
			return "malformed", fmt.Errorf("delete event missing 'id'")
		}
		if err := c.indexer.Delete(ctx, payload.ID); err != nil {
			return "error", err
		}
		return "ok", nil

	default:
		return "malformed", fmt.Errorf("unexpected routing key %q", d.RoutingKey)
	}
}

// Connected reports bus liveness for the health endpoint.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// Close cancels the consume loop and tears the connection down.
func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			return err
		}
	}
	slog.Info("consumer closed")
	return nil
}
