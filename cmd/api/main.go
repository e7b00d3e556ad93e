package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	"docvault/internal/events"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/jobstore"
	"docvault/internal/otel"
	"docvault/internal/repository/postgres"
	"docvault/internal/scanner"
	"docvault/internal/service"
	"docvault/internal/storage"
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

	shutdownTracing, err := otel.Init(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialize tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

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
			// Events are best-effort; the API starts without the broker.
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
	docSvc := service.NewDocumentService(docRepo, scanRepo, auditRepo, objStore, jobs, scanSvc, publisher, cfg.MaxUploadSize, cfg.Scan.SessionTTL, logger)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		BodyLimit:    int(cfg.MaxUploadSize) + 1024*1024,
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Logger())

	registry := prometheus.NewRegistry()
	prom, err := middleware.NewPrometheusMiddleware(registry)
	if err != nil {
		logger.Fatal("failed to register metrics", zap.Error(err))
	}
	app.Use(prom.Handler())

	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)
	app.Get("/metrics", func(c *fiber.Ctx) error {
		metricsHandler(c.Context())
		return nil
	})

	if cfg.RateLimit.Enabled {
		window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		limit := middleware.RateLimit(jobs, cfg.RateLimit.Limit, window)
		app.Use("/documents", func(c *fiber.Ctx) error {
			if c.Method() != fiber.MethodPost {
				return c.Next()
			}
			return limit(c)
		})
	}

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:        db,
		Docs:      docSvc,
		Scans:     scanSvc,
		Store:     objStore,
		Jobs:      jobs,
		Publisher: publisher,
		Scanner:   clam,
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("starting api server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}
