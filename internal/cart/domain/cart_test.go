package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
)

func TestApplyDelta(t *testing.T) {
	line := domain.NewLine("c1", "p1", 3, time.Now())

	res, err := line.ApplyDelta(2, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.Updated, res.Outcome)
	assert.Equal(t, 5, res.Line.Quantity)

	res, err = line.ApplyDelta(-3, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.Removed, res.Outcome)
	assert.Equal(t, line.ID, res.Line.ID)

	res, err = line.ApplyDelta(-10, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.Removed, res.Outcome)
}

func TestApplyDelta_QuantityLimit(t *testing.T) {
	line := domain.NewLine("c1", "p1", 5, time.Now())

	_, err := line.ApplyDelta(math.MaxInt64, time.Now())
	assert.ErrorIs(t, err, domain.ErrQuantityLimit)

	_, err = line.ApplyDelta(domain.MaxQuantity-4, time.Now())
	assert.ErrorIs(t, err, domain.ErrQuantityLimit)

	res, err := line.ApplyDelta(domain.MaxQuantity-5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.Updated, res.Outcome)
	assert.Equal(t, domain.MaxQuantity, res.Line.Quantity)

	res, err = line.ApplyDelta(math.MinInt64, time.Now())
	require.NoError(t, err)
	assert.Equal(t, domain.Removed, res.Outcome)
	assert.Zero(t, res.Line.Quantity)
}

func TestEligible(t *testing.T) {
	d := domain.DetailedLine{Line: domain.Line{Quantity: 3}, Product: catalog.Product{Stock: 3}}
	assert.True(t, d.Eligible())

	d.Product.Stock = 2
	assert.False(t, d.Eligible())
}
