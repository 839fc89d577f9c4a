package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	AggregateType = "customer_order"

	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

type PlacedLine struct {
	OrderLineID string          `json:"orderLineId"`
	ProductID   string          `json:"productId"`
	VendorID    string          `json:"vendorId"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

type OrderPlaced struct {
	CustomerID string          `json:"customerId"`
	Lines      []PlacedLine    `json:"lines"`
	Vendors    []string        `json:"vendors"`
	Total      decimal.Decimal `json:"total"`
	PlacedAt   time.Time       `json:"placedAt"`
}

func NewOrderPlaced(customerID string, lines []Line, total decimal.Decimal, at time.Time) OrderPlaced {
	ev := OrderPlaced{CustomerID: customerID, Total: total, PlacedAt: at}
	seen := map[string]bool{}
	for _, l := range lines {
		ev.Lines = append(ev.Lines, PlacedLine{
			OrderLineID: l.ID,
			ProductID:   l.ProductID,
			VendorID:    l.VendorID,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
		if !seen[l.VendorID] {
			seen[l.VendorID] = true
			ev.Vendors = append(ev.Vendors, l.VendorID)
		}
	}
	return ev
}

type OrderStatusChanged struct {
	OrderLineID string    `json:"orderLineId"`
	CustomerID  string    `json:"customerId"`
	VendorID    string    `json:"vendorId"`
	ProductID   string    `json:"productId"`
	Status      Status    `json:"status"`
	ChangedAt   time.Time `json:"changedAt"`
}
