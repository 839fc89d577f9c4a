package main

import (
	"context"
	"flag"
	"os"

	"github.com/dmehra2102/marketplace-orders/internal/app"
	"github.com/dmehra2102/marketplace-orders/internal/config"
	notifapp "github.com/dmehra2102/marketplace-orders/internal/notification/application"
	notifamqp "github.com/dmehra2102/marketplace-orders/internal/notification/infrastructure/amqp"
	notifkafka "github.com/dmehra2102/marketplace-orders/internal/notification/infrastructure/kafka"
	"github.com/dmehra2102/marketplace-orders/pkg/idempotency"
	"github.com/dmehra2102/marketplace-orders/pkg/logging"
	"github.com/dmehra2102/marketplace-orders/pkg/shutdown"
	"github.com/dmehra2102/marketplace-orders/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel).With("service", "notification-worker")

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, "notification-worker", cfg.OTELEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	backend, err := app.OpenBackend(ctx, log, cfg, false)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	rdb, err := app.OpenRedis(ctx, log, cfg.RedisAddr)
	if err != nil || rdb == nil {
		log.Error("redis is required for message de-duplication", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	svc := notifapp.NewService(log, backend.Notifications)

	switch cfg.EventBroker {
	case config.BrokerKafka:
		reader := notifkafka.NewReader(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.NotificationGroup)
		consumer := notifkafka.NewConsumer(log, reader, svc, idem)
		log.Info("consuming", "broker", "kafka", "topic", cfg.OrderEventsTopic, "group", cfg.NotificationGroup)
		err = consumer.Run(ctx)

	case config.BrokerRabbitMQ:
		deliveries, closeSub, subErr := notifamqp.Subscribe(cfg.AMQPURL, cfg.AMQPExchange, cfg.NotificationGroup)
		if subErr != nil {
			log.Error("amqp subscribe failed", "err", subErr)
			os.Exit(1)
		}
		defer func() { _ = closeSub() }()
		log.Info("consuming", "broker", "rabbitmq", "exchange", cfg.AMQPExchange, "queue", cfg.NotificationGroup)
		err = notifamqp.NewConsumer(log, svc, idem).Run(ctx, deliveries)

	default:
		log.Error("notification worker needs a kafka or rabbitmq broker", "broker", cfg.EventBroker)
		os.Exit(1)
	}

	if err != nil {
		log.Error("consumer stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("notification-worker shutdown complete")
}
