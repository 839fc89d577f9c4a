package domain

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"

	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
)

var (
	ErrNotFound = errors.New("cart line not found")
	// ErrNotAvailable is a reportable outcome of add-to-cart: the product is
	// missing or has less stock than requested.
	ErrNotAvailable  = errors.New("product not found or selected quantity is more than existing stock")
	ErrQuantityLimit = errors.New("cart line quantity limit exceeded")
)

// MaxQuantity is the largest quantity one cart line can hold.
const MaxQuantity = math.MaxInt32

// Line is one (customer, product) entry. There is at most one per pair.
type Line struct {
	ID         string    `json:"id"`
	CustomerID string    `json:"-"`
	ProductID  string    `json:"productId"`
	Quantity   int       `json:"quantity"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func NewLine(customerID, productID string, qty int, now time.Time) Line {
	return Line{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		ProductID:  productID,
		Quantity:   qty,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

type Outcome int

const (
	Updated Outcome = iota + 1
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// UpdateResult is the tagged result of a quantity change. Line is the new
// state for Updated and the deleted line for Removed.
type UpdateResult struct {
	Outcome Outcome
	Line    Line
}

// ApplyDelta adds delta to the quantity. A result of zero or less removes the
// line; a result above MaxQuantity fails with ErrQuantityLimit.
func (l Line) ApplyDelta(delta int, now time.Time) (UpdateResult, error) {
	q, err := Merge(l.Quantity, delta)
	if err != nil {
		return UpdateResult{}, err
	}
	l.Quantity = q
	if l.Quantity <= 0 {
		return UpdateResult{Outcome: Removed, Line: l}, nil
	}
	l.UpdatedAt = now
	return UpdateResult{Outcome: Updated, Line: l}, nil
}

// Merge returns qty+delta, or ErrQuantityLimit when that exceeds MaxQuantity.
// Results below zero are clamped to zero.
func Merge(qty, delta int) (int, error) {
	if delta > 0 && qty > MaxQuantity-delta {
		return 0, ErrQuantityLimit
	}
	if delta < 0 && qty+delta <= 0 {
		return 0, nil
	}
	return qty + delta, nil
}

// DetailedLine is a cart line joined with its product as read.
type DetailedLine struct {
	Line
	Product catalog.Product
}

// Eligible reports whether the product has stock for the whole line.
func (d DetailedLine) Eligible() bool {
	return d.Quantity <= d.Product.Stock
}
