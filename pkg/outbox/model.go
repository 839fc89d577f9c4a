package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmehra2102/marketplace-orders/pkg/tracing"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Header names set on every published message.
const (
	HeaderEventType = "event_type"
	HeaderEventID   = "event_id"
	HeaderSource    = "source"
)

// Event is one row of the outbox table. Events are appended in the same
// transaction as the state change they describe and published later by a Relay.
type Event struct {
	ID            int64
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
	Headers       map[string]string
	Traceparent   string
	CreatedAt     time.Time

	// Lease bookkeeping, filled by the store.
	Status     Status
	RelayID    string
	RetryCount int
	LastError  *string
}

// Builder stamps the events appended by one service for one aggregate type.
type Builder struct {
	Source        string
	AggregateType string
}

// New encodes body as JSON and carries the trace context of ctx.
func (b Builder) New(ctx context.Context, aggregateID, eventType string, body any, at time.Time) (Event, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return Event{
		AggregateType: b.AggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       payload,
		Headers:       map[string]string{HeaderSource: b.Source},
		Traceparent:   tracing.Traceparent(ctx),
		CreatedAt:     at,
		Status:        StatusPending,
	}, nil
}
