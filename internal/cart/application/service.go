package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
)

type Service struct {
	log      *slog.Logger
	repo     CartRepository
	products ProductReader
	now      func() time.Time
}

func NewService(log *slog.Logger, repo CartRepository, products ProductReader) *Service {
	return &Service{log: log, repo: repo, products: products, now: time.Now}
}

// AddToCart merges qty into the customer's line for the product. It fails
// with domain.ErrNotAvailable when the product is missing or qty exceeds stock.
func (s *Service) AddToCart(ctx context.Context, productID, customerID string, qty int) (domain.Line, error) {
	p, err := s.products.Get(ctx, productID)
	if errors.Is(err, catalog.ErrNotFound) {
		return domain.Line{}, domain.ErrNotAvailable
	}
	if err != nil {
		return domain.Line{}, err
	}
	if qty > p.Stock {
		return domain.Line{}, domain.ErrNotAvailable
	}

	line, err := s.repo.AddOrMerge(ctx, domain.NewLine(customerID, productID, qty, s.now().UTC()))
	if err != nil {
		// the product may have been deleted since the read
		if errors.Is(err, catalog.ErrNotFound) {
			return domain.Line{}, domain.ErrNotAvailable
		}
		return domain.Line{}, err
	}
	s.log.Debug("cart line stored", "cart_line_id", line.ID, "customer_id", customerID, "quantity", line.Quantity)
	return line, nil
}

// UpdateQuantity adds qty to the line, or subtracts it when isRemoval.
func (s *Service) UpdateQuantity(ctx context.Context, lineID, customerID string, qty int, isRemoval bool) (domain.UpdateResult, error) {
	delta := qty
	if isRemoval {
		delta = -qty
	}
	now := s.now().UTC()
	return s.repo.Update(ctx, lineID, customerID, func(l domain.Line) (domain.UpdateResult, error) {
		return l.ApplyDelta(delta, now)
	})
}

func (s *Service) Remove(ctx context.Context, lineID, customerID string) error {
	return s.repo.Delete(ctx, lineID, customerID)
}

func (s *Service) List(ctx context.Context, customerID string) ([]domain.Line, error) {
	return s.repo.List(ctx, customerID)
}
