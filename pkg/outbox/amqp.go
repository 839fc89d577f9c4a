package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher publishes events to a topic exchange using the event type as
// routing key.
type AMQPPublisher struct {
	log      *slog.Logger
	channel  AMQPChannel
	exchange string
}

func NewAMQPPublisher(log *slog.Logger, channel AMQPChannel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{log: log, channel: channel, exchange: exchange}
}

// DialAMQP connects with a few retries and declares the durable topic exchange.
// The returned func closes the channel and connection.
func DialAMQP(log *slog.Logger, url, exchange string) (*AMQPPublisher, func() error, error) {
	var conn *amqp.Connection
	var err error
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		wait := time.Duration(i*i)*time.Second + time.Second
		log.Warn("amqp dial failed, retrying", "in", wait.String(), "err", err)
		time.Sleep(wait)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}
	return NewAMQPPublisher(log, ch, exchange), closer, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	headers := amqp.Table{
		HeaderEventType: event.Type,
		HeaderEventID:   strconv.FormatInt(event.ID, 10),
	}
	for k, v := range event.Headers {
		headers[k] = v
	}
	if event.Traceparent != "" {
		headers["traceparent"] = event.Traceparent
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    strconv.FormatInt(event.ID, 10),
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Headers:      headers,
		Body:         event.Payload,
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, event.Type, false, false, msg); err != nil {
		p.log.Error("outbox publish failed", "event_id", event.ID, "broker", "amqp", "err", err)
		return err
	}
	p.log.Debug("outbox published", "event_id", event.ID, "type", event.Type, "broker", "amqp")
	return nil
}
