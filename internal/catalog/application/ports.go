package application

import (
	"context"

	"github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
)

// ProductRepository persists products. Methods taking a vendorID only touch
// rows owned by that vendor and report anything else as domain.ErrNotFound.
type ProductRepository interface {
	Create(ctx context.Context, p domain.Product) error
	Get(ctx context.Context, id string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	Update(ctx context.Context, id, vendorID string, patch domain.Patch) (domain.Product, error)
	Delete(ctx context.Context, id, vendorID string) error
	// AdjustStock applies a signed delta, failing with
	// domain.ErrInsufficientStock if stock would go negative.
	AdjustStock(ctx context.Context, id, vendorID string, delta int) (domain.Product, error)
	ListLowStock(ctx context.Context, vendorID string, max int) ([]domain.Product, error)
}
