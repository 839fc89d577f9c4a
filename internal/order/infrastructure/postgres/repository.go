package postgres

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	cartpg "github.com/dmehra2102/marketplace-orders/internal/cart/infrastructure/postgres"
	catalogpg "github.com/dmehra2102/marketplace-orders/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/marketplace-orders/internal/order/application"
	"github.com/dmehra2102/marketplace-orders/internal/order/domain"
	"github.com/dmehra2102/marketplace-orders/internal/platform/postgres"
)

const lineColumns = `o.id, o.customer_id, o.product_id, o.vendor_id, o.quantity, o.unit_price, o.status, o.created_at, o.updated_at`

// Transactor opens one pgx transaction per unit of work.
type Transactor struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewTransactor(log *slog.Logger, pool *pgxpool.Pool) *Transactor {
	return &Transactor{log: log, pool: pool}
}

func (t *Transactor) Within(ctx context.Context, fn func(ctx context.Context, uow application.UnitOfWork) error) error {
	return postgres.InTx(ctx, t.pool, func(tx pgx.Tx) error {
		return fn(ctx, &unitOfWork{tx: tx})
	})
}

type unitOfWork struct {
	tx pgx.Tx
}

func (u *unitOfWork) Cart() application.CartLines { return cartpg.NewCheckoutStore(u.tx) }
func (u *unitOfWork) Stock() application.Stock    { return catalogpg.NewStockStore(u.tx) }
func (u *unitOfWork) Orders() application.Lines   { return NewLineStore(u.tx) }
func (u *unitOfWork) Outbox() application.Outbox  { return postgres.NewOutboxWriter(u.tx) }

// LineStore writes order lines through q.
type LineStore struct {
	q postgres.Querier
}

func NewLineStore(q postgres.Querier) *LineStore { return &LineStore{q: q} }

func (s *LineStore) Insert(ctx context.Context, l domain.Line) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO order_lines (id, customer_id, product_id, vendor_id, quantity, unit_price, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		l.ID, l.CustomerID, l.ProductID, l.VendorID, l.Quantity, l.UnitPrice, string(l.Status), l.CreatedAt, l.UpdatedAt)
	return err
}

func (s *LineStore) UpdateStatus(ctx context.Context, lineID, vendorID string, status domain.Status, now time.Time) (domain.Line, error) {
	l, err := scanLine(s.q.QueryRow(ctx, `
		UPDATE order_lines o SET status=$3, updated_at=$4
		WHERE o.id=$1 AND o.vendor_id=$2
		RETURNING `+lineColumns, lineID, vendorID, string(status), now))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Line{}, domain.ErrNotFound
	}
	return l, err
}

// Reader serves the order queries. The product join is a LEFT JOIN so lines
// of deleted products still show, priced at their checkout price.
type Reader struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewReader(log *slog.Logger, pool *pgxpool.Pool) *Reader {
	return &Reader{log: log, pool: pool}
}

const viewSelect = `SELECT ` + lineColumns + `, COALESCE(p.name, ''), COALESCE(p.price, o.unit_price)
	FROM order_lines o
	LEFT JOIN products p ON p.id = o.product_id `

func (r *Reader) ListByCustomer(ctx context.Context, customerID string, status domain.Status) ([]domain.LineView, error) {
	return r.query(ctx, viewSelect+`WHERE o.customer_id=$1 AND ($2 = '' OR o.status=$2) ORDER BY o.created_at, o.id`,
		customerID, string(status))
}

func (r *Reader) GetForCustomer(ctx context.Context, lineID, customerID string) (domain.LineView, error) {
	views, err := r.query(ctx, viewSelect+`WHERE o.id=$1 AND o.customer_id=$2`, lineID, customerID)
	if err != nil {
		return domain.LineView{}, err
	}
	if len(views) == 0 {
		return domain.LineView{}, domain.ErrNotFound
	}
	return views[0], nil
}

func (r *Reader) ListByVendor(ctx context.Context, vendorID string, status domain.Status) ([]domain.LineView, error) {
	return r.query(ctx, viewSelect+`WHERE o.vendor_id=$1 AND o.status=$2 ORDER BY o.created_at, o.id`,
		vendorID, string(status))
}

func (r *Reader) query(ctx context.Context, sql string, args ...any) ([]domain.LineView, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.LineView
	for rows.Next() {
		var v domain.LineView
		var status string
		if err := rows.Scan(&v.ID, &v.CustomerID, &v.ProductID, &v.VendorID, &v.Quantity, &v.UnitPrice, &status,
			&v.CreatedAt, &v.UpdatedAt, &v.Product.Name, &v.Product.Price); err != nil {
			return nil, err
		}
		v.Status = domain.Status(status)
		out = append(out, v)
	}
	return out, rows.Err()
}

func scanLine(row pgx.Row) (domain.Line, error) {
	var l domain.Line
	var status string
	err := row.Scan(&l.ID, &l.CustomerID, &l.ProductID, &l.VendorID, &l.Quantity, &l.UnitPrice, &status, &l.CreatedAt, &l.UpdatedAt)
	l.Status = domain.Status(status)
	return l, err
}
