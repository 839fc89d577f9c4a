package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	"github.com/dmehra2102/marketplace-orders/internal/platform/postgres"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

// AddOrMerge relies on the (customer_id, product_id) unique key so concurrent
// adds of one product accumulate into a single line.
func (r *Repository) AddOrMerge(ctx context.Context, line domain.Line) (domain.Line, error) {
	if line.Quantity > domain.MaxQuantity {
		return domain.Line{}, domain.ErrQuantityLimit
	}
	var out domain.Line
	err := r.pool.QueryRow(ctx, `
		INSERT INTO cart_lines (id, customer_id, product_id, quantity, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$5)
		ON CONFLICT (customer_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = EXCLUDED.updated_at
		WHERE cart_lines.quantity::bigint + EXCLUDED.quantity <= $6
		RETURNING id, customer_id, product_id, quantity, created_at, updated_at`,
		line.ID, line.CustomerID, line.ProductID, line.Quantity, line.CreatedAt, domain.MaxQuantity).
		Scan(&out.ID, &out.CustomerID, &out.ProductID, &out.Quantity, &out.CreatedAt, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Line{}, domain.ErrQuantityLimit
	}
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return domain.Line{}, catalog.ErrNotFound
		}
		return domain.Line{}, err
	}
	return out, nil
}

func (r *Repository) List(ctx context.Context, customerID string) ([]domain.Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, customer_id, product_id, quantity, created_at, updated_at
		FROM cart_lines WHERE customer_id=$1 ORDER BY created_at, id`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Line
	for rows.Next() {
		var l domain.Line
		if err := rows.Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, lineID, customerID string, apply func(domain.Line) (domain.UpdateResult, error)) (domain.UpdateResult, error) {
	var res domain.UpdateResult
	err := postgres.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var l domain.Line
		err := tx.QueryRow(ctx, `
			SELECT id, customer_id, product_id, quantity, created_at, updated_at
			FROM cart_lines WHERE id=$1 AND customer_id=$2 FOR UPDATE`, lineID, customerID).
			Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.Quantity, &l.CreatedAt, &l.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}

		res, err = apply(l)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case domain.Removed:
			_, err = tx.Exec(ctx, `DELETE FROM cart_lines WHERE id=$1`, l.ID)
		default:
			_, err = tx.Exec(ctx, `UPDATE cart_lines SET quantity=$2, updated_at=$3 WHERE id=$1`,
				l.ID, res.Line.Quantity, res.Line.UpdatedAt)
		}
		return err
	})
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return res, nil
}

func (r *Repository) Delete(ctx context.Context, lineID, customerID string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE id=$1 AND customer_id=$2`, lineID, customerID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CheckoutStore reads and consumes cart lines inside a checkout transaction.
type CheckoutStore struct {
	q postgres.Querier
}

func NewCheckoutStore(q postgres.Querier) *CheckoutStore { return &CheckoutStore{q: q} }

// ListDetailed locks the customer's cart lines and joins each with its
// product. Lines whose product was deleted are skipped.
func (s *CheckoutStore) ListDetailed(ctx context.Context, customerID string) ([]domain.DetailedLine, error) {
	rows, err := s.q.Query(ctx, `
		SELECT c.id, c.customer_id, c.product_id, c.quantity, c.created_at, c.updated_at,
		       p.id, p.vendor_id, p.name, p.price, p.stock, p.category, p.created_at, p.updated_at
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.customer_id=$1
		ORDER BY c.product_id
		FOR UPDATE OF c`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DetailedLine
	for rows.Next() {
		var d domain.DetailedLine
		if err := rows.Scan(&d.ID, &d.CustomerID, &d.ProductID, &d.Quantity, &d.CreatedAt, &d.UpdatedAt,
			&d.Product.ID, &d.Product.VendorID, &d.Product.Name, &d.Product.Price, &d.Product.Stock,
			&d.Product.Category, &d.Product.CreatedAt, &d.Product.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *CheckoutStore) Remove(ctx context.Context, lineID string) error {
	ct, err := s.q.Exec(ctx, `DELETE FROM cart_lines WHERE id=$1`, lineID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
