package application

import (
	"context"
	"time"

	cart "github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

type CartLines interface {
	// ListDetailed returns the customer's cart lines joined with their
	// products and locks the lines for the rest of the unit of work.
	ListDetailed(ctx context.Context, customerID string) ([]cart.DetailedLine, error)
	Remove(ctx context.Context, lineID string) error
}

type Stock interface {
	// Decrement fails with catalog ErrInsufficientStock if stock is below qty.
	Decrement(ctx context.Context, productID string, qty int) error
}

type Lines interface {
	Insert(ctx context.Context, l domain.Line) error
	// UpdateStatus fails with domain.ErrNotFound unless the line exists and
	// belongs to vendorID.
	UpdateStatus(ctx context.Context, lineID, vendorID string, status domain.Status, now time.Time) (domain.Line, error)
}

type Outbox interface {
	Append(ctx context.Context, ev outbox.Event) error
}

// UnitOfWork scopes store access to one atomic batch.
type UnitOfWork interface {
	Cart() CartLines
	Stock() Stock
	Orders() Lines
	Outbox() Outbox
}

// Transactor runs fn atomically. If fn returns an error none of its writes
// are kept.
type Transactor interface {
	Within(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

type OrderReader interface {
	// ListByCustomer returns every status when status is empty.
	ListByCustomer(ctx context.Context, customerID string, status domain.Status) ([]domain.LineView, error)
	GetForCustomer(ctx context.Context, lineID, customerID string) (domain.LineView, error)
	ListByVendor(ctx context.Context, vendorID string, status domain.Status) ([]domain.LineView, error)
}

type CheckoutMetrics interface {
	Committed(lines, deferred int)
	Deferred(n int)
	Failed(reason string)
}

type nopMetrics struct{}

func (nopMetrics) Committed(int, int) {}
func (nopMetrics) Deferred(int)       {}
func (nopMetrics) Failed(string)      {}
