package domain

import (
	"encoding/json"
	"time"
)

type Kind string

const (
	KindOrderReceived Kind = "order_received"
	KindStatusChanged Kind = "order_status_changed"
)

// Notification is addressed to one vendor or customer. EventKey is unique
// per (event, recipient) so redelivered events never notify twice.
type Notification struct {
	EventKey    string          `json:"eventKey"`
	RecipientID string          `json:"recipientId"`
	Kind        Kind            `json:"kind"`
	Message     string          `json:"message"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func EventKey(eventID, recipientID string) string {
	return eventID + ":" + recipientID
}

// Envelope is one consumed event, independent of the broker it came from.
type Envelope struct {
	ID      string
	Type    string
	Payload []byte
}
