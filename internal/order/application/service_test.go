package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cart "github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	"github.com/dmehra2102/marketplace-orders/internal/order/application"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/internal/platform/memory"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func seedProduct(t *testing.T, store *memory.Store, id, vendor string, price int64, stock int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.Products().Create(context.Background(), catalog.Product{
		ID: id, VendorID: vendor, Name: "product " + id, Price: decimal.NewFromInt(price),
		Stock: stock, Category: "misc", CreatedAt: now, UpdatedAt: now,
	}))
}

func seedCart(t *testing.T, store *memory.Store, customer, product string, qty int) cart.Line {
	t.Helper()
	line, err := store.Cart().AddOrMerge(context.Background(), cart.NewLine(customer, product, qty, time.Now().UTC()))
	require.NoError(t, err)
	return line
}

func stockOf(t *testing.T, store *memory.Store, id string) int {
	t.Helper()
	p, err := store.Products().Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

type recordingMetrics struct {
	mu        sync.Mutex
	committed int
	lines     int
	deferred  int
	failures  map[string]int
}

func (m *recordingMetrics) Committed(lines, deferred int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed++
	m.lines += lines
	m.deferred += deferred
}

func (m *recordingMetrics) Deferred(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deferred += n
}

func (m *recordingMetrics) Failed(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = map[string]int{}
	}
	m.failures[reason]++
}

func TestCreateOrder_CommitsEligibleLinesOnly(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedProduct(t, store, "prod-b", "v2", 20, 1)
	seedCart(t, store, "c1", "prod-a", 2)
	lineB := seedCart(t, store, "c1", "prod-b", 3)

	metrics := &recordingMetrics{}
	svc := application.NewService(discard(), store, application.WithMetrics(metrics))

	summary, err := svc.CreateOrder(context.Background(), "c1")
	require.NoError(t, err)

	assert.True(t, summary.TotalOrderValue.Equal(decimal.NewFromInt(20)), summary.TotalOrderValue.String())
	require.Len(t, summary.SubOrders, 1)
	require.Contains(t, summary.SubOrders, "v1")
	require.Len(t, summary.SubOrders["v1"].Items, 1)
	assert.Equal(t, 2, summary.SubOrders["v1"].Items[0].Quantity)

	assert.Equal(t, 3, stockOf(t, store, "prod-a"))
	assert.Equal(t, 1, stockOf(t, store, "prod-b"))

	orders, err := store.Orders().ListByCustomer(context.Background(), "c1", "")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "prod-a", orders[0].ProductID)
	assert.Equal(t, "v1", orders[0].VendorID)
	assert.Equal(t, domain.StatusCreated, orders[0].Status)
	assert.Equal(t, 2, orders[0].Quantity)

	remaining := store.Cart().Detailed("c1")
	require.Len(t, remaining, 1)
	assert.Equal(t, lineB.ID, remaining[0].ID)
	assert.Equal(t, 3, remaining[0].Quantity)

	assert.Equal(t, 1, metrics.committed)
	assert.Equal(t, 1, metrics.lines)
	assert.Equal(t, 1, metrics.deferred)
}

func TestCreateOrder_AppendsPlacedEvent(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedProduct(t, store, "prod-c", "v3", 4, 5)
	seedCart(t, store, "c1", "prod-a", 1)
	seedCart(t, store, "c1", "prod-c", 2)

	_, err := application.NewService(discard(), store).CreateOrder(context.Background(), "c1")
	require.NoError(t, err)

	events := store.Outbox().Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventOrderPlaced, events[0].Type)
	assert.Equal(t, "c1", events[0].AggregateID)

	var placed domain.OrderPlaced
	require.NoError(t, json.Unmarshal(events[0].Payload, &placed))
	assert.ElementsMatch(t, []string{"v1", "v3"}, placed.Vendors)
	assert.True(t, placed.Total.Equal(decimal.NewFromInt(18)))
}

func TestCreateOrder_NothingEligibleIsNoOp(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-b", "v2", 20, 1)
	seedCart(t, store, "c1", "prod-b", 3)

	summary, err := application.NewService(discard(), store).CreateOrder(context.Background(), "c1")
	require.NoError(t, err)

	assert.True(t, summary.Empty())
	assert.True(t, summary.TotalOrderValue.IsZero())
	assert.Equal(t, 1, stockOf(t, store, "prod-b"))
	assert.Len(t, store.Cart().Detailed("c1"), 1)
	assert.Empty(t, store.Outbox().Events())
}

func TestCreateOrder_ZeroValueIsNoOp(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "freebie", "v1", 0, 5)
	seedCart(t, store, "c1", "freebie", 2)

	summary, err := application.NewService(discard(), store).CreateOrder(context.Background(), "c1")
	require.NoError(t, err)

	assert.True(t, summary.Empty())
	assert.Equal(t, 5, stockOf(t, store, "freebie"))
	assert.Len(t, store.Cart().Detailed("c1"), 1)
	assert.Empty(t, store.Outbox().Events())
}

func TestCreateOrder_EmptyCart(t *testing.T) {
	summary, err := application.NewService(discard(), memory.New()).CreateOrder(context.Background(), "nobody")
	require.NoError(t, err)
	assert.True(t, summary.Empty())
}

// faultyTx wraps a Transactor and injects failures into its units of work.
type faultyTx struct {
	inner      application.Transactor
	failInsert int
	stockErr   error
}

func (f *faultyTx) Within(ctx context.Context, fn func(ctx context.Context, uow application.UnitOfWork) error) error {
	return f.inner.Within(ctx, func(ctx context.Context, uow application.UnitOfWork) error {
		return fn(ctx, &faultyUoW{UnitOfWork: uow, tx: f})
	})
}

type faultyUoW struct {
	application.UnitOfWork
	tx      *faultyTx
	inserts int
}

func (u *faultyUoW) Orders() application.Lines {
	return faultyLines{Lines: u.UnitOfWork.Orders(), u: u}
}

func (u *faultyUoW) Stock() application.Stock {
	if u.tx.stockErr != nil {
		return failingStock{err: u.tx.stockErr}
	}
	return u.UnitOfWork.Stock()
}

type faultyLines struct {
	application.Lines
	u *faultyUoW
}

func (l faultyLines) Insert(ctx context.Context, line domain.Line) error {
	l.u.inserts++
	if l.u.inserts == l.u.tx.failInsert {
		return errors.New("disk full")
	}
	return l.Lines.Insert(ctx, line)
}

type failingStock struct{ err error }

func (s failingStock) Decrement(context.Context, string, int) error { return s.err }

func TestCreateOrder_RollsBackWholeBatchOnMidBatchFailure(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedProduct(t, store, "prod-c", "v3", 4, 4)
	seedCart(t, store, "c1", "prod-a", 2)
	seedCart(t, store, "c1", "prod-c", 1)

	// prod-a is inserted first, prod-c's stock is decremented and then its
	// insert fails.
	metrics := &recordingMetrics{}
	svc := application.NewService(discard(), &faultyTx{inner: store, failInsert: 2}, application.WithMetrics(metrics))

	_, err := svc.CreateOrder(context.Background(), "c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	assert.Equal(t, 5, stockOf(t, store, "prod-a"))
	assert.Equal(t, 4, stockOf(t, store, "prod-c"))
	assert.Len(t, store.Cart().Detailed("c1"), 2)

	orders, err := store.Orders().ListByCustomer(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, store.Outbox().Events())
	assert.Equal(t, 1, metrics.failures["persistence"])
}

func TestCreateOrder_LostStockRaceIsConflict(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedCart(t, store, "c1", "prod-a", 2)

	svc := application.NewService(discard(), &faultyTx{inner: store, stockErr: catalog.ErrInsufficientStock})

	_, err := svc.CreateOrder(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	assert.Len(t, store.Cart().Detailed("c1"), 1)
}

func TestCreateOrder_RetryableStorageErrorIsConflict(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedCart(t, store, "c1", "prod-a", 2)

	serialization := errors.New("could not serialize access")
	svc := application.NewService(discard(), &faultyTx{inner: store, stockErr: serialization},
		application.WithRetryable(func(err error) bool { return errors.Is(err, serialization) }))

	_, err := svc.CreateOrder(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestCreateOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)

	const customers = 12
	for i := 0; i < customers; i++ {
		seedCart(t, store, fmt.Sprintf("c%d", i), "prod-a", 1)
	}
	svc := application.NewService(discard(), store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)
	for i := 0; i < customers; i++ {
		wg.Add(1)
		go func(customer string) {
			defer wg.Done()
			summary, err := svc.CreateOrder(context.Background(), customer)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			committed += summary.LineCount()
			mu.Unlock()
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	assert.Equal(t, 5, committed)
	assert.Equal(t, 0, stockOf(t, store, "prod-a"))

	total := 0
	for i := 0; i < customers; i++ {
		lines, err := store.Orders().ListByCustomer(context.Background(), fmt.Sprintf("c%d", i), "")
		require.NoError(t, err)
		for _, l := range lines {
			total += l.Quantity
		}
	}
	assert.Equal(t, 5, total)
}

func TestCreateOrder_TimeoutRollsBack(t *testing.T) {
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedCart(t, store, "c1", "prod-a", 2)

	slow := &slowTx{inner: store, delay: 50 * time.Millisecond}
	svc := application.NewService(discard(), slow, application.WithTimeout(10*time.Millisecond))

	_, err := svc.CreateOrder(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 5, stockOf(t, store, "prod-a"))
	assert.Len(t, store.Cart().Detailed("c1"), 1)
}

type slowTx struct {
	inner application.Transactor
	delay time.Duration
}

func (s *slowTx) Within(ctx context.Context, fn func(ctx context.Context, uow application.UnitOfWork) error) error {
	return s.inner.Within(ctx, func(ctx context.Context, uow application.UnitOfWork) error {
		if err := fn(ctx, uow); err != nil {
			return err
		}
		select {
		case <-time.After(s.delay):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
