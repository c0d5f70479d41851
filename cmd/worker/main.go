package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/medassist/api/internal/platform/config"
	"github.com/medassist/api/internal/platform/events"
	"github.com/medassist/api/internal/platform/mongodb"
	"github.com/medassist/api/internal/platform/observability"
	repomongo "github.com/medassist/api/internal/repositories/mongodb"
	"github.com/medassist/api/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("worker exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoProvider := mongodb.NewProvider(cfg.Mongo)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := mongoProvider.Close(closeCtx); err != nil {
			logger.Warn("mongo close failed", zap.Error(err))
		}
	}()

	db, err := mongoProvider.Database(ctx)
	if err != nil {
		return err
	}

	publisher, err := events.NewAMQPPublisher(cfg.AMQP)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("amqp publisher close failed", zap.Error(err))
		}
	}()

	consumer, err := events.NewConsumer(cfg.AMQP.URI, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := consumer.Close(); err != nil {
			logger.Warn("amqp consumer close failed", zap.Error(err))
		}
	}()

	processor, err := worker.NewProcessor(worker.ProcessorDeps{
		Orders:     repomongo.NewOrderRepository(db),
		Inventory:  repomongo.NewInventoryRepository(db),
		Pharmacies: repomongo.NewPharmacyRepository(db),
		Users:      repomongo.NewUserRepository(db),
		Indexer:    worker.NewHTTPSearchIndexer(cfg.Search.URI, logger),
		Notifier:   worker.NewLogNotifier(logger),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("worker consuming", zap.String("broker", "amqp"))
	return consumer.Run(ctx, publisher, processor.Bindings())
}
