package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
)

// DefaultLowStock is the stock threshold used when the vendor gives none.
const DefaultLowStock = 10

type Service struct {
	log  *slog.Logger
	repo ProductRepository
	now  func() time.Time
}

func NewService(log *slog.Logger, repo ProductRepository) *Service {
	return &Service{log: log, repo: repo, now: time.Now}
}

type NewProduct struct {
	Name     string
	Price    decimal.Decimal
	Stock    int
	Category string
}

func (s *Service) Create(ctx context.Context, vendorID string, in NewProduct) (domain.Product, error) {
	p, err := domain.NewProduct(vendorID, in.Name, in.Price, in.Stock, in.Category, s.now().UTC())
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return domain.Product{}, err
	}
	s.log.Info("product created", "product_id", p.ID, "vendor_id", vendorID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, id, vendorID string, patch domain.Patch) (domain.Product, error) {
	if patch.Empty() {
		return domain.Product{}, domain.ErrInvalidProduct
	}
	if patch.Price != nil && patch.Price.IsNegative() {
		return domain.Product{}, domain.ErrInvalidProduct
	}
	return s.repo.Update(ctx, id, vendorID, patch)
}

func (s *Service) Delete(ctx context.Context, id, vendorID string) error {
	if err := s.repo.Delete(ctx, id, vendorID); err != nil {
		return err
	}
	s.log.Info("product deleted", "product_id", id, "vendor_id", vendorID)
	return nil
}

// Restock applies a signed stock delta on a product the vendor owns.
func (s *Service) Restock(ctx context.Context, id, vendorID string, delta int) (domain.Product, error) {
	p, err := s.repo.AdjustStock(ctx, id, vendorID, delta)
	if err != nil {
		return domain.Product{}, err
	}
	s.log.Info("stock adjusted", "product_id", id, "delta", delta, "stock", p.Stock)
	return p, nil
}

func (s *Service) LowStock(ctx context.Context, vendorID string, max int) ([]domain.Product, error) {
	if max < 0 {
		max = DefaultLowStock
	}
	return s.repo.ListLowStock(ctx, vendorID, max)
}
