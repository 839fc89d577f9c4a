package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/marketplace-orders/internal/notification/application"
	"github.com/dmehra2102/marketplace-orders/internal/notification/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

// RoutingPattern binds the queue to every order event type.
const RoutingPattern = "order.#"

type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Handler interface {
	Handle(ctx context.Context, env domain.Envelope) error
}

type Consumer struct {
	log     *slog.Logger
	handler Handler
	idem    Deduper
	tracer  trace.Tracer
}

func NewConsumer(log *slog.Logger, handler Handler, idem Deduper) *Consumer {
	return &Consumer{log: log, handler: handler, idem: idem, tracer: otel.Tracer("notification-consumer")}
}

// Subscribe declares a durable queue bound to exchange and starts delivery.
// The returned func closes the channel and connection.
func Subscribe(url, exchange, queue string) (<-chan amqp.Delivery, func() error, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, RoutingPattern, exchange, false, nil); err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, closer, nil
}

// Run handles deliveries until ctx is done or the channel closes. Failed
// events are requeued once; malformed ones are rejected.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("amqp delivery channel closed")
			}
			c.consume(ctx, d)
		}
	}
}

func (c *Consumer) consume(ctx context.Context, d amqp.Delivery) {
	env := domain.Envelope{ID: d.MessageId, Type: d.Type, Payload: d.Body}
	if v, ok := d.Headers[outbox.HeaderEventID].(string); ok && v != "" {
		env.ID = v
	}
	if v, ok := d.Headers[outbox.HeaderEventType].(string); ok && v != "" {
		env.Type = v
	}
	if env.Type == "" {
		env.Type = d.RoutingKey
	}

	key := "idem:amqp:" + env.ID
	if env.ID != "" {
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Warn("idempotency check failed", "key", key, "err", err)
		}
		if seen {
			c.log.Info("duplicate delivery skipped", "event_id", env.ID)
			_ = d.Ack(false)
			return
		}
	}

	carrier := propagation.MapCarrier{}
	for k, v := range d.Headers {
		if s, ok := v.(string); ok {
			carrier[k] = s
		}
	}
	msgCtx := otel.GetTextMapPropagator().Extract(ctx, carrier)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderEvent")
	defer span.End()

	err := c.handler.Handle(msgCtx, env)
	switch {
	case err == nil:
		c.log.Info("event processed", "event_id", env.ID, "type", env.Type)
		_ = d.Ack(false)
	case errors.Is(err, application.ErrMalformed):
		c.log.Error("event rejected", "event_id", env.ID, "type", env.Type, "err", err)
		_ = d.Reject(false)
	default:
		span.RecordError(err)
		c.log.Error("event failed", "event_id", env.ID, "type", env.Type, "redelivered", d.Redelivered, "err", err)
		if env.ID != "" {
			_ = c.idem.Release(ctx, key)
		}
		_ = d.Nack(false, !d.Redelivered)
	}
}
