package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/marketplace-orders/internal/notification/domain"
	order "github.com/dmehra2102/marketplace-orders/internal/order/domain"
)

// ErrMalformed marks an event that can never be processed. Consumers commit
// past it instead of retrying.
var ErrMalformed = errors.New("malformed event")

type Repository interface {
	// Save stores n unless its EventKey exists. It reports whether n was new.
	Save(ctx context.Context, n domain.Notification) (bool, error)
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error)
}

type Service struct {
	log  *slog.Logger
	repo Repository
	now  func() time.Time
}

func NewService(log *slog.Logger, repo Repository) *Service {
	return &Service{log: log, repo: repo, now: time.Now}
}

// Handle turns one order event into notifications. Unknown event types are
// ignored.
func (s *Service) Handle(ctx context.Context, env domain.Envelope) error {
	var (
		notes []domain.Notification
		err   error
	)
	switch env.Type {
	case order.EventOrderPlaced:
		notes, err = s.placed(env)
	case order.EventOrderStatusChanged:
		notes, err = s.statusChanged(env)
	default:
		s.log.Debug("event ignored", "event_id", env.ID, "type", env.Type)
		return nil
	}
	if err != nil {
		return err
	}

	for _, n := range notes {
		created, err := s.repo.Save(ctx, n)
		if err != nil {
			return fmt.Errorf("save notification %s: %w", n.EventKey, err)
		}
		if !created {
			s.log.Info("notification already stored", "event_key", n.EventKey)
			continue
		}
		s.log.Info("notification stored", "event_key", n.EventKey, "recipient_id", n.RecipientID, "kind", n.Kind)
	}
	return nil
}

func (s *Service) List(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	return s.repo.ListForRecipient(ctx, recipientID, limit)
}

type vendorPayload struct {
	CustomerID string             `json:"customerId"`
	Lines      []order.PlacedLine `json:"lines"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
}

func (s *Service) placed(env domain.Envelope) ([]domain.Notification, error) {
	var ev order.OrderPlaced
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, env.Type, err)
	}

	byVendor := map[string]*vendorPayload{}
	for _, l := range ev.Lines {
		p, ok := byVendor[l.VendorID]
		if !ok {
			p = &vendorPayload{CustomerID: ev.CustomerID, Subtotal: decimal.Zero}
			byVendor[l.VendorID] = p
		}
		p.Lines = append(p.Lines, l)
		p.Subtotal = p.Subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	now := s.now().UTC()
	notes := make([]domain.Notification, 0, len(ev.Vendors))
	for _, vendorID := range ev.Vendors {
		p, ok := byVendor[vendorID]
		if !ok {
			continue
		}
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		notes = append(notes, domain.Notification{
			EventKey:    domain.EventKey(env.ID, vendorID),
			RecipientID: vendorID,
			Kind:        domain.KindOrderReceived,
			Message:     fmt.Sprintf("You received %d new order line(s) worth %s", len(p.Lines), p.Subtotal.StringFixed(2)),
			Payload:     raw,
			CreatedAt:   now,
		})
	}
	return notes, nil
}

func (s *Service) statusChanged(env domain.Envelope) ([]domain.Notification, error) {
	var ev order.OrderStatusChanged
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, env.Type, err)
	}
	if ev.CustomerID == "" {
		return nil, fmt.Errorf("%w: %s without customer", ErrMalformed, env.Type)
	}
	return []domain.Notification{{
		EventKey:    domain.EventKey(env.ID, ev.CustomerID),
		RecipientID: ev.CustomerID,
		Kind:        domain.KindStatusChanged,
		Message:     fmt.Sprintf("Your order %s is now %s", ev.OrderLineID, ev.Status),
		Payload:     env.Payload,
		CreatedAt:   s.now().UTC(),
	}}, nil
}
