package application_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	"github.com/dmehra2102/marketplace-orders/internal/order/application"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/internal/platform/memory"
)

func placeOrder(t *testing.T) (*memory.Store, string) {
	t.Helper()
	store := memory.New()
	seedProduct(t, store, "prod-a", "v1", 10, 5)
	seedCart(t, store, "c1", "prod-a", 2)

	summary, err := application.NewService(discard(), store).CreateOrder(context.Background(), "c1")
	require.NoError(t, err)
	return store, summary.SubOrders["v1"].Items[0].OrderLineID
}

func TestChangeStatus_OnlyOwningVendor(t *testing.T) {
	store, lineID := placeOrder(t)
	q := application.NewQueryService(discard(), store.Orders(), store)

	_, err := q.ChangeStatus(context.Background(), lineID, "v2", domain.StatusDispatched)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = q.ChangeStatus(context.Background(), "missing", "v1", domain.StatusDispatched)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	line, err := q.ChangeStatus(context.Background(), lineID, "v1", domain.StatusDispatched)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDispatched, line.Status)

	// transitions are not ordered
	line, err = q.ChangeStatus(context.Background(), lineID, "v1", domain.StatusCreated)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCreated, line.Status)

	events := store.Outbox().Events()
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventOrderStatusChanged, events[1].Type)

	var changed domain.OrderStatusChanged
	require.NoError(t, json.Unmarshal(events[1].Payload, &changed))
	assert.Equal(t, "c1", changed.CustomerID)
	assert.Equal(t, domain.StatusDispatched, changed.Status)
}

func TestChangeStatus_RejectsUnknownStatus(t *testing.T) {
	store, lineID := placeOrder(t)
	q := application.NewQueryService(discard(), store.Orders(), store)

	_, err := q.ChangeStatus(context.Background(), lineID, "v1", domain.Status("lost"))
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestListForCustomer(t *testing.T) {
	store, lineID := placeOrder(t)
	q := application.NewQueryService(discard(), store.Orders(), store)

	h, err := q.ListForCustomer(context.Background(), "c1", "")
	require.NoError(t, err)
	require.Len(t, h.Lines, 1)
	assert.Equal(t, 2, h.Summary.TotalQuantity)
	assert.Equal(t, "20", h.Summary.TotalPrice.String())
	assert.Equal(t, "product prod-a", h.Lines[0].Product.Name)

	h, err = q.ListForCustomer(context.Background(), "c1", domain.StatusDelivered)
	require.NoError(t, err)
	assert.Empty(t, h.Lines)

	_, err = q.Get(context.Background(), lineID, "c2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	view, err := q.Get(context.Background(), lineID, "c1")
	require.NoError(t, err)
	assert.Equal(t, "prod-a", view.ProductID)
}

func TestListForVendor_DefaultsToCreatedAndIsolates(t *testing.T) {
	store, _ := placeOrder(t)
	q := application.NewQueryService(discard(), store.Orders(), store)

	views, err := q.ListForVendor(context.Background(), "v1", "")
	require.NoError(t, err)
	assert.Len(t, views, 1)

	views, err = q.ListForVendor(context.Background(), "v2", "")
	require.NoError(t, err)
	assert.Empty(t, views)

	views, err = q.ListForVendor(context.Background(), "v1", domain.StatusDispatched)
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestListForCustomer_TotalsAtCurrentPrice(t *testing.T) {
	store, _ := placeOrder(t)
	price := decimal.NewFromInt(15)
	_, err := store.Products().Update(context.Background(), "prod-a", "v1", catalog.Patch{Price: &price})
	require.NoError(t, err)

	q := application.NewQueryService(discard(), store.Orders(), store)
	h, err := q.ListForCustomer(context.Background(), "c1", "")
	require.NoError(t, err)
	require.Len(t, h.Lines, 1)
	assert.Equal(t, "15", h.Lines[0].Product.Price.String())
	assert.Equal(t, "10", h.Lines[0].UnitPrice.String(), "the checkout price is kept on the line")
	assert.Equal(t, "30", h.Summary.TotalPrice.String())

	// a deleted product falls back to the checkout price
	require.NoError(t, store.Products().Delete(context.Background(), "prod-a", "v1"))
	h, err = q.ListForCustomer(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "20", h.Summary.TotalPrice.String())
}
