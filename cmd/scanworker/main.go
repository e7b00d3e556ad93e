package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	"docvault/internal/events"
	"docvault/internal/jobstore"
	"docvault/internal/repository/postgres"
	"docvault/internal/scanner"
	"docvault/internal/service"
	"docvault/internal/storage"
	"docvault/internal/worker"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, logger); err != nil {
		logger.Fatal("database migration failed", zap.Error(err))
	}

	objStore, err := storage.New(cfg.Storage)
	if err != nil {
		logger.Fatal("failed to initialize object storage", zap.Error(err))
	}

	jobs, err := jobstore.NewRedis(cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer jobs.Close()

	publisher := events.Publisher(events.NopPublisher{})
	if cfg.RabbitMQ.Enabled {
		publisher, err = events.NewRabbitMQ(cfg.RabbitMQ, logger)
		if err != nil {
			logger.Warn("event bus unavailable, continuing without events", zap.Error(err))
			publisher = events.NopPublisher{}
		}
	}
	defer publisher.Close()

	clam := scanner.New(cfg.ClamAV, logger)

	docRepo := postgres.NewDocumentPostgres(db)
	scanRepo := postgres.NewScanPostgres(db)
	auditRepo := postgres.NewAuditPostgres(db)

	scanSvc := service.NewScanService(jobs, docRepo, scanRepo, auditRepo, objStore, clam, publisher, cfg.Scan.JobTTL, logger)

	w := worker.New(jobs, scanSvc, worker.Config{
		DequeueTimeout: cfg.Scan.DequeueTimeout,
		ProcessTimeout: cfg.Scan.ProcessTimeout,
	}, logger)

	logger.Info("scan worker started")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("worker stopped", zap.Error(err))
	}
	logger.Info("scan worker stopped")
}
