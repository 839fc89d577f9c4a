package memory

import (
	"context"
	"sort"
	"time"

	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

// Outbox implements outbox.Store over the in-process table.
type Outbox struct{ s *Store }

func (o *Outbox) LockBatch(_ context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	now := o.s.now()
	ids := make([]int64, 0)
	for id, row := range o.s.st.outbox {
		switch row.event.Status {
		case outbox.StatusPending:
			ids = append(ids, id)
		case outbox.StatusInProgress:
			if row.leaseUntil.Before(now) {
				ids = append(ids, id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > batchSize {
		ids = ids[:batchSize]
	}

	events := make([]outbox.Event, 0, len(ids))
	for _, id := range ids {
		row := o.s.st.outbox[id]
		row.event.Status = outbox.StatusInProgress
		row.event.RelayID = relayID
		row.leaseUntil = now.Add(lease)
		o.s.st.outbox[id] = row
		events = append(events, row.event)
	}
	return events, nil
}

func (o *Outbox) MarkSent(_ context.Context, ids []int64) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for _, id := range ids {
		if row, ok := o.s.st.outbox[id]; ok {
			row.event.Status = outbox.StatusSent
			o.s.st.outbox[id] = row
		}
	}
	return nil
}

func (o *Outbox) MarkFailed(_ context.Context, id int64, errMsg string, maxRetries int) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	row, ok := o.s.st.outbox[id]
	if !ok {
		return nil
	}
	row.event.RetryCount++
	row.event.LastError = &errMsg
	row.event.Status = outbox.StatusPending
	if row.event.RetryCount >= maxRetries {
		row.event.Status = outbox.StatusFailed
	}
	row.leaseUntil = time.Time{}
	o.s.st.outbox[id] = row
	return nil
}

func (o *Outbox) ExtendLease(_ context.Context, relayID string, ids []int64, lease time.Duration) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	until := o.s.now().Add(lease)
	for _, id := range ids {
		if row, ok := o.s.st.outbox[id]; ok && row.event.RelayID == relayID {
			row.leaseUntil = until
			o.s.st.outbox[id] = row
		}
	}
	return nil
}

// Events returns a copy of every outbox event in id order.
func (o *Outbox) Events() []outbox.Event {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	out := make([]outbox.Event, 0, len(o.s.st.outbox))
	for _, row := range o.s.st.outbox {
		out = append(out, row.event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
