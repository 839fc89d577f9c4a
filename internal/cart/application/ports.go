package application

import (
	"context"

	"github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
)

type CartRepository interface {
	// AddOrMerge inserts line or, if the customer already has the product,
	// adds line.Quantity to the existing line. It returns the stored line.
	AddOrMerge(ctx context.Context, line domain.Line) (domain.Line, error)
	List(ctx context.Context, customerID string) ([]domain.Line, error)
	// Update locks the customer's line, passes it to apply, and then either
	// saves or deletes it according to the outcome. An error from apply is
	// returned and nothing changes.
	Update(ctx context.Context, lineID, customerID string, apply func(domain.Line) (domain.UpdateResult, error)) (domain.UpdateResult, error)
	Delete(ctx context.Context, lineID, customerID string) error
}

type ProductReader interface {
	Get(ctx context.Context, id string) (catalog.Product, error)
}
