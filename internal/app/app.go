// Package app builds the backends shared by the binaries from config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	cartapp "github.com/dmehra2102/marketplace-orders/internal/cart/application"
	cartpg "github.com/dmehra2102/marketplace-orders/internal/cart/infrastructure/postgres"
	catalogapp "github.com/dmehra2102/marketplace-orders/internal/catalog/application"
	catalogpg "github.com/dmehra2102/marketplace-orders/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/marketplace-orders/internal/config"
	notifapp "github.com/dmehra2102/marketplace-orders/internal/notification/application"
	notifpg "github.com/dmehra2102/marketplace-orders/internal/notification/infrastructure/postgres"
	orderapp "github.com/dmehra2102/marketplace-orders/internal/order/application"
	orderpg "github.com/dmehra2102/marketplace-orders/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/marketplace-orders/internal/platform/health"
	"github.com/dmehra2102/marketplace-orders/internal/platform/memory"
	"github.com/dmehra2102/marketplace-orders/internal/platform/postgres"
	"github.com/dmehra2102/marketplace-orders/pkg/outbox"
)

// Backend is every store behind one STORE_DRIVER.
type Backend struct {
	Products      catalogapp.ProductRepository
	Cart          cartapp.CartRepository
	Orders        orderapp.OrderReader
	Tx            orderapp.Transactor
	Outbox        outbox.Store
	Notifications notifapp.Repository
	Pinger        health.Pinger
	Retryable     orderapp.RetryableFunc

	// Pool is nil for the memory driver.
	Pool  *pgxpool.Pool
	close func()
}

func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// OpenBackend connects the configured store. With migrate set, pending
// migrations are applied first.
func OpenBackend(ctx context.Context, log *slog.Logger, cfg config.Config, migrate bool) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn("using in-memory store; data is lost on exit")
		store := memory.New()
		return &Backend{
			Products:      store.Products(),
			Cart:          store.Cart(),
			Orders:        store.Orders(),
			Tx:            store,
			Outbox:        store.Outbox(),
			Notifications: memory.NewNotifications(),
			Pinger:        store,
			Retryable:     func(error) bool { return false },
		}, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, log, cfg.PGURL, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, log, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return &Backend{
			Products:      catalogpg.NewRepository(log, pool),
			Cart:          cartpg.NewRepository(log, pool),
			Orders:        orderpg.NewReader(log, pool),
			Tx:            orderpg.NewTransactor(log, pool),
			Outbox:        postgres.NewOutboxStore(log, pool),
			Notifications: notifpg.NewRepository(log, pool),
			Pinger:        pool,
			Retryable:     postgres.IsRetryable,
			Pool:          pool,
			close:         pool.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

// OpenPublisher returns the outbox publisher for EVENT_BROKER and a func that
// releases its connection.
func OpenPublisher(log *slog.Logger, cfg config.Config) (outbox.Publisher, func() error, error) {
	switch cfg.EventBroker {
	case config.BrokerKafka:
		w := outbox.NewKafkaWriter(cfg.KafkaBrokers)
		return outbox.NewKafkaPublisher(log, w, cfg.OrderEventsTopic), w.Close, nil
	case config.BrokerRabbitMQ:
		return outbox.DialAMQP(log, cfg.AMQPURL, cfg.AMQPExchange)
	case config.BrokerLog:
		return outbox.NewLogPublisher(log), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown event broker %q", cfg.EventBroker)
}

// OpenRedis returns a pinged client, or nil when REDIS_ADDR is empty.
func OpenRedis(ctx context.Context, log *slog.Logger, addr string) (*redis.Client, error) {
	if addr == "" {
		log.Warn("redis disabled; idempotency keys are not enforced")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	log.Info("redis connected", "addr", addr)
	return rdb, nil
}

// NewRelay wires the outbox relay for the backend.
func NewRelay(log *slog.Logger, b *Backend, pub outbox.Publisher, relayID string) *outbox.Relay {
	return outbox.NewRelay(log, b.Outbox, pub, relayID)
}
