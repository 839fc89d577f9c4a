//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartapp "github.com/dmehra2102/marketplace-orders/internal/cart/application"
	cartpg "github.com/dmehra2102/marketplace-orders/internal/cart/infrastructure/postgres"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	catalogpg "github.com/dmehra2102/marketplace-orders/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/marketplace-orders/internal/order/application"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	orderpg "github.com/dmehra2102/marketplace-orders/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/marketplace-orders/internal/platform/postgres"
)

func checkout(opts ...application.Option) *application.Service {
	opts = append([]application.Option{application.WithRetryable(postgres.IsRetryable)}, opts...)
	return application.NewService(discard(), orderpg.NewTransactor(discard(), pool), opts...)
}

func TestCheckout_CommitsEligibleLines(t *testing.T) {
	reset(t)
	seedProduct(t, "prod-a", "v1", "10.00", 5)
	seedProduct(t, "prod-b", "v2", "20.00", 1)
	seedCart(t, "c1", "prod-a", 2)
	seedCart(t, "c1", "prod-b", 3)

	summary, err := checkout().CreateOrder(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "20", summary.TotalOrderValue.String())
	assert.Equal(t, 1, summary.LineCount())

	assert.Equal(t, 3, stockOf(t, "prod-a"))
	assert.Equal(t, 1, stockOf(t, "prod-b"))

	left, err := cartpg.NewRepository(discard(), pool).List(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "prod-b", left[0].ProductID)

	assert.Equal(t, 1, count(t, "order_lines"))
	assert.Equal(t, 1, count(t, "outbox"))
}

func TestCheckout_LastUnitsUnderConcurrency(t *testing.T) {
	reset(t)
	seedProduct(t, "prod-a", "v1", "1.00", 5)
	const customers = 12
	for i := 0; i < customers; i++ {
		seedCart(t, fmt.Sprintf("c%d", i), "prod-a", 1)
	}

	svc := checkout()
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
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrConflict)
				return
			}
			mu.Lock()
			committed += summary.LineCount()
			mu.Unlock()
		}(fmt.Sprintf("c%d", i))
	}
	wg.Wait()

	assert.Equal(t, 5, committed)
	assert.Equal(t, 0, stockOf(t, "prod-a"))
	assert.Equal(t, 5, count(t, "order_lines"))
	assert.Equal(t, customers-5, count(t, "cart_lines"))
}

// failingTx fails the nth order line insert of each unit of work.
type failingTx struct {
	inner application.Transactor
	failAt int
}

func (f failingTx) Within(ctx context.Context, fn func(context.Context, application.UnitOfWork) error) error {
	return f.inner.Within(ctx, func(ctx context.Context, uow application.UnitOfWork) error {
		return fn(ctx, &failingUoW{UnitOfWork: uow, failAt: f.failAt})
	})
}

type failingUoW struct {
	application.UnitOfWork
	failAt  int
	inserts int
}

func (u *failingUoW) Orders() application.Lines { return failingLines{Lines: u.UnitOfWork.Orders(), uow: u} }

type failingLines struct {
	application.Lines
	uow *failingUoW
}

func (l failingLines) Insert(ctx context.Context, line domain.Line) error {
	l.uow.inserts++
	if l.uow.inserts == l.uow.failAt {
		return errors.New("disk full")
	}
	return l.Lines.Insert(ctx, line)
}

func TestCheckout_RollsBackWholeBatch(t *testing.T) {
	reset(t)
	seedProduct(t, "prod-a", "v1", "10.00", 5)
	seedProduct(t, "prod-b", "v2", "20.00", 5)
	seedCart(t, "c1", "prod-a", 1)
	seedCart(t, "c1", "prod-b", 1)

	svc := application.NewService(discard(), failingTx{inner: orderpg.NewTransactor(discard(), pool), failAt: 2})
	_, err := svc.CreateOrder(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrPersistence)

	assert.Equal(t, 5, stockOf(t, "prod-a"))
	assert.Equal(t, 5, stockOf(t, "prod-b"))
	assert.Equal(t, 2, count(t, "cart_lines"))
	assert.Equal(t, 0, count(t, "order_lines"))
	assert.Equal(t, 0, count(t, "outbox"))
}

func TestStatusChange_VendorScoped(t *testing.T) {
	reset(t)
	seedProduct(t, "prod-a", "v1", "10.00", 5)
	seedCart(t, "c1", "prod-a", 1)
	summary, err := checkout().CreateOrder(context.Background(), "c1")
	require.NoError(t, err)
	lineID := summary.SubOrders["v1"].Items[0].OrderLineID

	q := application.NewQueryService(discard(), orderpg.NewReader(discard(), pool), orderpg.NewTransactor(discard(), pool))
	_, err = q.ChangeStatus(context.Background(), lineID, "v2", domain.StatusDelivered)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	line, err := q.ChangeStatus(context.Background(), lineID, "v1", domain.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, line.Status)

	// deleting the product keeps history at the checkout price
	require.NoError(t, catalogpg.NewRepository(discard(), pool).Delete(context.Background(), "prod-a", "v1"))
	h, err := q.ListForCustomer(context.Background(), "c1", domain.StatusDelivered)
	require.NoError(t, err)
	require.Len(t, h.Lines, 1)
	assert.Equal(t, "10", h.Summary.TotalPrice.String())
	assert.Equal(t, 2, count(t, "outbox"))
}

func TestCart_ConcurrentAddsMergeIntoOneLine(t *testing.T) {
	reset(t)
	seedProduct(t, "prod-a", "v1", "1.00", 100)
	products := catalogpg.NewRepository(discard(), pool)
	svc := cartapp.NewService(discard(), cartpg.NewRepository(discard(), pool), products)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddToCart(context.Background(), "prod-a", "c1", 2)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	lines, err := svc.List(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 20, lines[0].Quantity)

	_, err = products.AdjustStock(context.Background(), "prod-a", "v1", -101)
	assert.ErrorIs(t, err, catalog.ErrInsufficientStock)
	_, err = products.AdjustStock(context.Background(), "prod-a", "v2", 1)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}
