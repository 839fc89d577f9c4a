package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("order line not found")
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrConflict means checkout lost a race for stock or hit a serialization
	// failure. Nothing was written and the caller may retry.
	ErrConflict = errors.New("order conflict")
	// ErrPersistence is any other storage failure. Nothing was written.
	ErrPersistence = errors.New("order persistence failure")
)

type Status string

const (
	StatusCreated    Status = "created"
	StatusDispatched Status = "dispatched"
	StatusDelivered  Status = "delivered"
)

// ParseStatus accepts any of the three statuses. Transitions are not ordered.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusCreated, StatusDispatched, StatusDelivered:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// Line is one committed order line. Everything but Status is immutable.
// VendorID is copied from the product at checkout.
type Line struct {
	ID         string          `json:"id"`
	CustomerID string          `json:"userId"`
	ProductID  string          `json:"productId"`
	VendorID   string          `json:"vendorId"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unitPrice"`
	Status     Status          `json:"status"`
	CreatedAt  time.Time       `json:"orderDate"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func NewLine(customerID, productID, vendorID string, qty int, unitPrice decimal.Decimal, now time.Time) Line {
	return Line{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		ProductID:  productID,
		VendorID:   vendorID,
		Quantity:   qty,
		UnitPrice:  unitPrice,
		Status:     StatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type ProductInfo struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LineView is a line joined with the current product name and price. Lines
// of deleted products carry their checkout price.
type LineView struct {
	Line
	Product ProductInfo `json:"productInfo"`
}

// Total prices the line at the joined product price.
func (v LineView) Total() decimal.Decimal {
	return v.Product.Price.Mul(decimal.NewFromInt(int64(v.Quantity)))
}

type HistorySummary struct {
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	TotalQuantity int             `json:"totalQuantity"`
}

// History is a customer's order lines with a rollup. TotalPrice uses the
// same product price shown on each line.
type History struct {
	Summary HistorySummary `json:"orderSummary"`
	Lines   []LineView     `json:"orderItems"`
}

func NewHistory(lines []LineView) History {
	h := History{Summary: HistorySummary{TotalPrice: decimal.Zero}, Lines: lines}
	for _, l := range lines {
		h.Summary.TotalPrice = h.Summary.TotalPrice.Add(l.Total())
		h.Summary.TotalQuantity += l.Quantity
	}
	return h
}

type SummaryItem struct {
	OrderLineID string          `json:"orderLineId"`
	ProductID   string          `json:"productId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type SubOrder struct {
	Items    []SummaryItem   `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// Summary describes one checkout, built only from committed lines.
type Summary struct {
	TotalOrderValue decimal.Decimal      `json:"totalOrderValue"`
	SubOrders       map[string]*SubOrder `json:"subOrders"`
}

func NewSummary() Summary {
	return Summary{TotalOrderValue: decimal.Zero, SubOrders: map[string]*SubOrder{}}
}

func (s *Summary) Add(l Line) {
	sub, ok := s.SubOrders[l.VendorID]
	if !ok {
		sub = &SubOrder{Subtotal: decimal.Zero}
		s.SubOrders[l.VendorID] = sub
	}
	sub.Items = append(sub.Items, SummaryItem{
		OrderLineID: l.ID,
		ProductID:   l.ProductID,
		Quantity:    l.Quantity,
		UnitPrice:   l.UnitPrice,
	})
	sub.Subtotal = sub.Subtotal.Add(l.Subtotal())
	s.TotalOrderValue = s.TotalOrderValue.Add(l.Subtotal())
}

func (s Summary) LineCount() int {
	n := 0
	for _, sub := range s.SubOrders {
		n += len(sub.Items)
	}
	return n
}

// Empty reports a checkout that committed nothing.
func (s Summary) Empty() bool { return s.LineCount() == 0 }
