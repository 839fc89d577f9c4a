package memory

import (
	"context"
	"sort"
	"sync"

	notification "github.com/dmehra2102/marketplace-orders/internal/notification/domain"
)

// Notifications is kept apart from the transactional state; the worker never
// writes it inside a unit of work.
type Notifications struct {
	mu    sync.Mutex
	byKey map[string]notification.Notification
}

func NewNotifications() *Notifications {
	return &Notifications{byKey: map[string]notification.Notification{}}
}

func (n *Notifications) Save(_ context.Context, note notification.Notification) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.byKey[note.EventKey]; ok {
		return false, nil
	}
	n.byKey[note.EventKey] = note
	return true, nil
}

func (n *Notifications) ListForRecipient(_ context.Context, recipientID string, limit int) ([]notification.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := []notification.Notification{}
	for _, note := range n.byKey {
		if note.RecipientID == recipientID {
			out = append(out, note)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EventKey < out[j].EventKey
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
