package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace-orders/internal/notification/application"
	"github.com/dmehra2102/marketplace-orders/internal/notification/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
	"github.com/dmehra2102/marketplace-orders/pkg/tracing"
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Deduper is satisfied by *idempotency.Store.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Handler interface {
	Handle(ctx context.Context, env domain.Envelope) error
}

type Consumer struct {
	log      *slog.Logger
	reader   MessageReader
	handler  Handler
	idem     Deduper
	tracer   trace.Tracer
	attempts int
	backoff  time.Duration
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

type Option func(*Consumer)

// WithRetry sets how often a failing event is handled before it is dropped,
// and the base delay between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(c *Consumer) { c.attempts, c.backoff = attempts, backoff }
}

func NewConsumer(log *slog.Logger, reader MessageReader, handler Handler, idem Deduper, opts ...Option) *Consumer {
	c := &Consumer{
		log:      log,
		reader:   reader,
		handler:  handler,
		idem:     idem,
		tracer:   otel.Tracer("notification-consumer"),
		attempts: 3,
		backoff:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

// Run consumes until ctx is cancelled. A message is committed once it was
// handled, skipped as a duplicate, or given up on after the retry budget.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.consume(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, msg kafka.Message) {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// the notification store is idempotent on its own
		c.log.Warn("idempotency check failed", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return
	}

	env := domain.Envelope{
		ID:      tracing.HeaderValue(msg.Headers, outbox.HeaderEventID),
		Type:    tracing.HeaderValue(msg.Headers, outbox.HeaderEventType),
		Payload: msg.Value,
	}
	if env.ID == "" {
		env.ID = fmt.Sprintf("%s-%d-%d", msg.Topic, msg.Partition, msg.Offset)
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderEvent", trace.WithAttributes(
		attribute.String("event.id", env.ID),
		attribute.String("event.type", env.Type),
	))
	defer span.End()

	if err := c.handle(msgCtx, env); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handle failed")
		c.log.Error("event dropped", "event_id", env.ID, "type", env.Type, "err", err)
		if rErr := c.idem.Release(ctx, key); rErr != nil {
			c.log.Warn("idempotency release failed", "key", key, "err", rErr)
		}
		return
	}
	c.log.Info("event processed", "event_id", env.ID, "type", env.Type)
}

func (c *Consumer) handle(ctx context.Context, env domain.Envelope) error {
	var err error
	for i := 0; i < c.attempts; i++ {
		if err = c.handler.Handle(ctx, env); err == nil || errors.Is(err, application.ErrMalformed) {
			return err
		}
		c.log.Warn("handle failed, retrying", "event_id", env.ID, "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff * time.Duration(i+1)):
		}
	}
	return err
}
