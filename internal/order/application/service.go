package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cart "github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

const DefaultCheckoutTimeout = 10 * time.Second

var orderEvents = outbox.Builder{Source: "order-service", AggregateType: domain.AggregateType}

// RetryableFunc reports storage errors that are worth retrying, such as
// serialization failures.
type RetryableFunc func(error) bool

// Service is the checkout orchestrator. It turns a customer's cart into
// per-vendor order lines in a single unit of work.
type Service struct {
	log       *slog.Logger
	tx        Transactor
	metrics   CheckoutMetrics
	retryable RetryableFunc
	timeout   time.Duration
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Service)

func WithMetrics(m CheckoutMetrics) Option  { return func(s *Service) { s.metrics = m } }
func WithTimeout(d time.Duration) Option    { return func(s *Service) { s.timeout = d } }
func WithRetryable(fn RetryableFunc) Option { return func(s *Service) { s.retryable = fn } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(log *slog.Logger, tx Transactor, opts ...Option) *Service {
	s := &Service{
		log:       log,
		tx:        tx,
		metrics:   nopMetrics{},
		retryable: func(error) bool { return false },
		timeout:   DefaultCheckoutTimeout,
		tracer:    otel.Tracer("order-checkout"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder converts the customer's cart into order lines.
//
// Lines asking for more than the current stock stay in the cart and are left
// out of the order. Every eligible line is committed together: stock is
// decremented, an order line is inserted and the cart line removed, or none
// of that happens and the error wraps domain.ErrConflict or
// domain.ErrPersistence. A cart whose eligible lines are worth nothing yields
// an empty Summary and a nil error without writing anything.
func (s *Service) CreateOrder(ctx context.Context, customerID string) (domain.Summary, error) {
	ctx, span := s.tracer.Start(ctx, "CreateOrder", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		summary  domain.Summary
		deferred int
	)
	err := s.tx.Within(ctx, func(ctx context.Context, uow UnitOfWork) error {
		summary = domain.NewSummary()

		detailed, err := uow.Cart().ListDetailed(ctx, customerID)
		if err != nil {
			return fmt.Errorf("list cart: %w", err)
		}
		eligible := make([]cart.DetailedLine, 0, len(detailed))
		value := decimal.Zero
		for _, d := range detailed {
			if d.Eligible() {
				eligible = append(eligible, d)
				value = value.Add(d.Product.Price.Mul(decimal.NewFromInt(int64(d.Quantity))))
			}
		}
		deferred = len(detailed) - len(eligible)
		// A zero order value means there is nothing to order.
		if len(eligible) == 0 || value.IsZero() {
			deferred = len(detailed)
			return nil
		}

		// Stock rows are locked in product order so concurrent checkouts
		// cannot deadlock on each other.
		sort.Slice(eligible, func(i, j int) bool { return eligible[i].ProductID < eligible[j].ProductID })

		now := s.now().UTC()
		lines := make([]domain.Line, 0, len(eligible))
		for _, d := range eligible {
			if err := uow.Stock().Decrement(ctx, d.ProductID, d.Quantity); err != nil {
				return fmt.Errorf("decrement stock of %s: %w", d.ProductID, err)
			}
			line := domain.NewLine(customerID, d.ProductID, d.Product.VendorID, d.Quantity, d.Product.Price, now)
			if err := uow.Orders().Insert(ctx, line); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
			if err := uow.Cart().Remove(ctx, d.ID); err != nil {
				return fmt.Errorf("remove cart line %s: %w", d.ID, err)
			}
			summary.Add(line)
			lines = append(lines, line)
		}

		ev, err := s.placedEvent(ctx, customerID, lines, summary, now)
		if err != nil {
			return err
		}
		return uow.Outbox().Append(ctx, ev)
	})
	if err != nil {
		err = s.classify(err)
		reason := "persistence"
		if errors.Is(err, domain.ErrConflict) {
			reason = "conflict"
		}
		s.metrics.Failed(reason)
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		s.log.Error("checkout rolled back", "customer_id", customerID, "reason", reason, "err", err)
		return domain.Summary{}, err
	}

	if summary.Empty() {
		s.metrics.Deferred(deferred)
		s.log.Info("checkout found nothing eligible", "customer_id", customerID, "deferred_lines", deferred)
		return summary, nil
	}

	s.metrics.Committed(summary.LineCount(), deferred)
	span.SetAttributes(attribute.Int("order.lines", summary.LineCount()), attribute.Int("order.deferred", deferred))
	s.log.Info("checkout committed",
		"customer_id", customerID,
		"lines", summary.LineCount(),
		"vendors", len(summary.SubOrders),
		"deferred_lines", deferred,
		"total", summary.TotalOrderValue.String(),
	)
	return summary, nil
}

func (s *Service) placedEvent(ctx context.Context, customerID string, lines []domain.Line, summary domain.Summary, now time.Time) (outbox.Event, error) {
	return orderEvents.New(ctx, customerID, domain.EventOrderPlaced,
		domain.NewOrderPlaced(customerID, lines, summary.TotalOrderValue, now), now)
}

// classify maps a rolled back batch onto ErrConflict or ErrPersistence.
func (s *Service) classify(err error) error {
	switch {
	case errors.Is(err, catalog.ErrInsufficientStock),
		errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, cart.ErrNotFound),
		errors.Is(err, context.DeadlineExceeded),
		s.retryable(err):
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
}
