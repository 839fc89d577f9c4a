package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeStore struct {
	mu      sync.Mutex
	batch   []outbox.Event
	sent    []int64
	failed  map[int64]string
	lockErr error
}

func (s *fakeStore) LockBatch(_ context.Context, _ string, _ int, _ time.Duration) ([]outbox.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lockErr != nil {
		return nil, s.lockErr
	}
	out := s.batch
	s.batch = nil
	return out, nil
}

func (s *fakeStore) MarkSent(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, id int64, errMsg string, _ int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failed == nil {
		s.failed = map[int64]string{}
	}
	s.failed[id] = errMsg
	return nil
}

func (s *fakeStore) ExtendLease(context.Context, string, []int64, time.Duration) error { return nil }

type fakePublisher struct {
	failIDs map[int64]bool
	got     []outbox.Event
}

func (p *fakePublisher) Publish(_ context.Context, e outbox.Event) error {
	if p.failIDs[e.ID] {
		return errors.New("broker down")
	}
	p.got = append(p.got, e)
	return nil
}

func TestRelay_TickMarksSentAndFailed(t *testing.T) {
	store := &fakeStore{batch: []outbox.Event{{ID: 1, Type: "order.placed"}, {ID: 2, Type: "order.placed"}, {ID: 3}}}
	pub := &fakePublisher{failIDs: map[int64]bool{2: true}}
	relay := outbox.NewRelay(discard(), store, pub, "test-relay")

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 3}, store.sent)
	assert.Equal(t, "broker down", store.failed[2])
	assert.Len(t, pub.got, 2)
}

func TestRelay_TickEmptyBatch(t *testing.T) {
	relay := outbox.NewRelay(discard(), &fakeStore{}, &fakePublisher{}, "test-relay")

	n, err := relay.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelay_TickLockError(t *testing.T) {
	relay := outbox.NewRelay(discard(), &fakeStore{lockErr: errors.New("db gone")}, &fakePublisher{}, "test-relay")

	_, err := relay.Tick(context.Background())
	assert.Error(t, err)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := &fakeStore{batch: []outbox.Event{{ID: 7}}}
	relay := outbox.NewRelay(discard(), store, &fakePublisher{}, "test-relay", outbox.WithInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.sent) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

type fakeProducer struct{ msgs []kafka.Message }

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func TestKafkaPublisher_SetsKeyAndHeaders(t *testing.T) {
	prod := &fakeProducer{}
	pub := outbox.NewKafkaPublisher(discard(), prod, "order.events")

	err := pub.Publish(context.Background(), outbox.Event{
		ID:          42,
		AggregateID: "cust-1",
		Type:        "order.placed",
		Payload:     []byte(`{}`),
		Headers:     map[string]string{outbox.HeaderSource: "order-service"},
		Traceparent: "00-abc-def-01",
	})
	require.NoError(t, err)
	require.Len(t, prod.msgs, 1)

	msg := prod.msgs[0]
	assert.Equal(t, "order.events", msg.Topic)
	assert.Equal(t, "cust-1", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "order.placed", headers[outbox.HeaderEventType])
	assert.Equal(t, "42", headers[outbox.HeaderEventID])
	assert.Equal(t, "00-abc-def-01", headers["traceparent"])
	assert.Equal(t, "order-service", headers[outbox.HeaderSource])
}

type fakeChannel struct {
	exchange, key string
	msg           amqp.Publishing
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key, c.msg = exchange, key, msg
	return nil
}

func TestAMQPPublisher_RoutesByEventType(t *testing.T) {
	ch := &fakeChannel{}
	pub := outbox.NewAMQPPublisher(discard(), ch, "order_exchange")

	err := pub.Publish(context.Background(), outbox.Event{ID: 9, Type: "order.status_changed", Payload: []byte(`{"a":1}`)})
	require.NoError(t, err)

	assert.Equal(t, "order_exchange", ch.exchange)
	assert.Equal(t, "order.status_changed", ch.key)
	assert.Equal(t, "9", ch.msg.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), ch.msg.DeliveryMode)
	assert.Equal(t, "order.status_changed", ch.msg.Headers[outbox.HeaderEventType])
}

func TestBuilder_New(t *testing.T) {
	b := outbox.Builder{Source: "order-service", AggregateType: "customer_order"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	ev, err := b.New(context.Background(), "cust-1", "order.placed", map[string]int{"lines": 2}, at)
	require.NoError(t, err)
	assert.Equal(t, "customer_order", ev.AggregateType)
	assert.Equal(t, "cust-1", ev.AggregateID)
	assert.JSONEq(t, `{"lines":2}`, string(ev.Payload))
	assert.Equal(t, "order-service", ev.Headers[outbox.HeaderSource])
	assert.Equal(t, outbox.StatusPending, ev.Status)
	assert.Empty(t, ev.Traceparent, "no span in ctx")
	assert.Equal(t, at, ev.CreatedAt)

	_, err = b.New(context.Background(), "cust-1", "order.placed", make(chan int), at)
	assert.Error(t, err)
}
