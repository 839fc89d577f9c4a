//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	cart "github.com/dmehra2102/marketplace-orders/internal/cart/domain"
	cartpg "github.com/dmehra2102/marketplace-orders/internal/cart/infrastructure/postgres"
	catalog "github.com/dmehra2102/marketplace-orders/internal/catalog/domain"
	catalogpg "github.com/dmehra2102/marketplace-orders/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/marketplace-orders/internal/platform/postgres"
)

var (
	env  *Env
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	env, err = Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration setup:", err)
		os.Exit(1)
	}

	pool, err = postgres.Connect(ctx, discard(), env.PGURL, 20)
	if err == nil {
		err = postgres.Migrate(ctx, discard(), pool)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "postgres:", err)
		env.Teardown(ctx)
		os.Exit(1)
	}

	code := m.Run()
	pool.Close()
	env.Teardown(ctx)
	os.Exit(code)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func reset(t *testing.T) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `TRUNCATE products, cart_lines, order_lines, outbox, notifications RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

func seedProduct(t *testing.T, id, vendor string, price string, stock int) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, catalogpg.NewRepository(discard(), pool).Create(context.Background(), catalog.Product{
		ID: id, VendorID: vendor, Name: "product " + id, Price: decimal.RequireFromString(price),
		Stock: stock, Category: "misc", CreatedAt: now, UpdatedAt: now,
	}))
}

func seedCart(t *testing.T, customer, product string, qty int) cart.Line {
	t.Helper()
	line, err := cartpg.NewRepository(discard(), pool).AddOrMerge(context.Background(), cart.NewLine(customer, product, qty, time.Now().UTC()))
	require.NoError(t, err)
	return line
}

func stockOf(t *testing.T, id string) int {
	t.Helper()
	p, err := catalogpg.NewRepository(discard(), pool).Get(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT count(*) FROM `+table).Scan(&n))
	return n
}
