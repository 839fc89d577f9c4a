package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidProduct    = errors.New("invalid product")
	ErrStockLimit        = errors.New("stock limit exceeded")
)

// MaxStock is the largest stock a product can hold.
const MaxStock = math.MaxInt32

// Product is owned by its vendor. Stock never goes below zero; it changes
// only through signed deltas that are rejected when they would.
type Product struct {
	ID        string          `json:"id"`
	VendorID  string          `json:"vendorId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Category  string          `json:"category"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Patch holds the vendor-editable fields. Nil fields are left unchanged.
type Patch struct {
	Name     *string
	Price    *decimal.Decimal
	Category *string
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.Category == nil
}

func NewProduct(vendorID, name string, price decimal.Decimal, stock int, category string, now time.Time) (Product, error) {
	if vendorID == "" || name == "" {
		return Product{}, ErrInvalidProduct
	}
	if !price.IsPositive() || stock < 0 || stock > MaxStock {
		return Product{}, ErrInvalidProduct
	}
	return Product{
		ID:        uuid.NewString(),
		VendorID:  vendorID,
		Name:      name,
		Price:     price,
		Stock:     stock,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p Product) WithStockDelta(delta int, now time.Time) (Product, error) {
	if err := CheckStockDelta(p.Stock, delta); err != nil {
		return p, err
	}
	p.Stock += delta
	p.UpdatedAt = now
	return p, nil
}

// CheckStockDelta reports whether stock+delta stays within [0, MaxStock].
func CheckStockDelta(stock, delta int) error {
	switch {
	case delta < 0 && stock+delta < 0:
		return ErrInsufficientStock
	case delta > 0 && stock > MaxStock-delta:
		return ErrStockLimit
	}
	return nil
}

func (p Product) Apply(patch Patch, now time.Time) (Product, error) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Price != nil {
		if !patch.Price.IsPositive() {
			return p, ErrInvalidProduct
		}
		p.Price = *patch.Price
	}
	if patch.Category != nil {
		p.Category = *patch.Category
	}
	p.UpdatedAt = now
	return p, nil
}
