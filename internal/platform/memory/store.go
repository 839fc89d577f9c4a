// Package memory keeps every store in process. It backs STORE_DRIVER=memory
// and the service tests. A unit of work runs under the store lock against a
// copy of the state that replaces the original only if the work succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	cart "github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	"github.com/dmehra2102/marketplace-orders/internal/order/application"
	order "github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

type outboxRow struct {
	event      outbox.Event
	leaseUntil time.Time
}

type state struct {
	products  map[string]catalog.Product
	cart      map[string]cart.Line
	orders    map[string]order.Line
	outbox    map[int64]outboxRow
	outboxSeq int64
}

func (s state) clone() state {
	c := state{
		products:  make(map[string]catalog.Product, len(s.products)),
		cart:      make(map[string]cart.Line, len(s.cart)),
		orders:    make(map[string]order.Line, len(s.orders)),
		outbox:    make(map[int64]outboxRow, len(s.outbox)),
		outboxSeq: s.outboxSeq,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = v
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.outbox {
		c.outbox[k] = v
	}
	return c
}

type Store struct {
	mu  sync.Mutex
	st  state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: state{
			products: map[string]catalog.Product{},
			cart:     map[string]cart.Line{},
			orders:   map[string]order.Line{},
			outbox:   map[int64]outboxRow{},
		},
		now: time.Now,
	}
}

func (s *Store) Products() *Products { return &Products{s: s} }
func (s *Store) Cart() *Carts        { return &Carts{s: s} }
func (s *Store) Orders() *Orders     { return &Orders{s: s} }
func (s *Store) Outbox() *Outbox     { return &Outbox{s: s} }

// Within implements application.Transactor.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, uow application.UnitOfWork) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &unitOfWork{st: &work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Ping always succeeds. It lets the store stand in for a database in the
// health checker.
func (s *Store) Ping(context.Context) error { return nil }

type unitOfWork struct {
	st  *state
	now func() time.Time
}

func (u *unitOfWork) Cart() application.CartLines { return checkoutCart{u} }
func (u *unitOfWork) Stock() application.Stock    { return stock{u} }
func (u *unitOfWork) Orders() application.Lines   { return orderLines{u} }
func (u *unitOfWork) Outbox() application.Outbox  { return outboxWriter{u} }

type checkoutCart struct{ u *unitOfWork }

func (c checkoutCart) ListDetailed(_ context.Context, customerID string) ([]cart.DetailedLine, error) {
	return detailedLines(c.u.st, customerID), nil
}

func (c checkoutCart) Remove(_ context.Context, lineID string) error {
	if _, ok := c.u.st.cart[lineID]; !ok {
		return cart.ErrNotFound
	}
	delete(c.u.st.cart, lineID)
	return nil
}

type stock struct{ u *unitOfWork }

func (s stock) Decrement(_ context.Context, productID string, qty int) error {
	p, ok := s.u.st.products[productID]
	if !ok {
		return catalog.ErrNotFound
	}
	p, err := p.WithStockDelta(-qty, s.u.now().UTC())
	if err != nil {
		return err
	}
	s.u.st.products[productID] = p
	return nil
}

type orderLines struct{ u *unitOfWork }

func (o orderLines) Insert(_ context.Context, l order.Line) error {
	o.u.st.orders[l.ID] = l
	return nil
}

func (o orderLines) UpdateStatus(_ context.Context, lineID, vendorID string, status order.Status, now time.Time) (order.Line, error) {
	l, ok := o.u.st.orders[lineID]
	if !ok || l.VendorID != vendorID {
		return order.Line{}, order.ErrNotFound
	}
	l.Status = status
	l.UpdatedAt = now
	o.u.st.orders[lineID] = l
	return l, nil
}

type outboxWriter struct{ u *unitOfWork }

func (w outboxWriter) Append(_ context.Context, ev outbox.Event) error {
	appendOutbox(w.u.st, ev, w.u.now())
	return nil
}

func appendOutbox(st *state, ev outbox.Event, now time.Time) {
	st.outboxSeq++
	ev.ID = st.outboxSeq
	ev.Status = outbox.StatusPending
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	st.outbox[ev.ID] = outboxRow{event: ev}
}

func detailedLines(st *state, customerID string) []cart.DetailedLine {
	var out []cart.DetailedLine
	for _, l := range st.cart {
		if l.CustomerID != customerID {
			continue
		}
		p, ok := st.products[l.ProductID]
		if !ok {
			continue
		}
		out = append(out, cart.DetailedLine{Line: l, Product: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}
