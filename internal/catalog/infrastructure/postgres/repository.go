package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	"github.com/dmehra2102/marketplace-orders/internal/platform/postgres"
)

const productColumns = `id, vendor_id, name, price, stock, category, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, p domain.Product) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO products (`+productColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.VendorID, p.Name, p.Price, p.Stock, p.Category, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *Repository) Get(ctx context.Context, id string) (domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, err
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at, id`)
}

func (r *Repository) ListLowStock(ctx context.Context, vendorID string, max int) ([]domain.Product, error) {
	return r.query(ctx, `SELECT `+productColumns+` FROM products WHERE vendor_id=$1 AND stock <= $2 ORDER BY stock, id`, vendorID, max)
}

func (r *Repository) Update(ctx context.Context, id, vendorID string, patch domain.Patch) (domain.Product, error) {
	p, err := scanProduct(r.pool.QueryRow(ctx, `
		UPDATE products
		SET name = COALESCE($3, name),
		    price = COALESCE($4, price),
		    category = COALESCE($5, category),
		    updated_at = now()
		WHERE id=$1 AND vendor_id=$2
		RETURNING `+productColumns, id, vendorID, patch.Name, patch.Price, patch.Category))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, err
}

func (r *Repository) Delete(ctx context.Context, id, vendorID string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1 AND vendor_id=$2`, id, vendorID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) AdjustStock(ctx context.Context, id, vendorID string, delta int) (domain.Product, error) {
	return adjustStock(ctx, r.pool, id, vendorID, delta)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// adjustStock is the single conditional stock mutation. An empty vendorID
// skips the ownership filter.
func adjustStock(ctx context.Context, q postgres.Querier, id, vendorID string, delta int) (domain.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx, `
		UPDATE products
		SET stock = (stock::bigint + $3::bigint)::integer, updated_at = now()
		WHERE id=$1 AND ($2 = '' OR vendor_id=$2) AND stock::bigint + $3::bigint BETWEEN 0 AND $4
		RETURNING `+productColumns, id, vendorID, int64(delta), int64(domain.MaxStock)))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, err
	}

	// Distinguish a missing or foreign product from a stock bound.
	var stock int
	err = q.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 AND ($2 = '' OR vendor_id=$2)`, id, vendorID).Scan(&stock)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Product{}, err
	}
	if err := domain.CheckStockDelta(stock, delta); err != nil {
		return domain.Product{}, err
	}
	return domain.Product{}, domain.ErrInsufficientStock
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.VendorID, &p.Name, &p.Price, &p.Stock, &p.Category, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// StockStore decrements stock inside a checkout transaction.
type StockStore struct {
	q postgres.Querier
}

func NewStockStore(q postgres.Querier) *StockStore { return &StockStore{q: q} }

func (s *StockStore) Decrement(ctx context.Context, productID string, qty int) error {
	_, err := adjustStock(ctx, s.q, productID, "", -qty)
	return err
}
