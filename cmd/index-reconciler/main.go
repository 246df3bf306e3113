package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/contentplane/index-reconciler/config"
	httpdelivery "github.com/contentplane/index-reconciler/delivery/http"
	"github.com/contentplane/index-reconciler/domain/entity"
	"github.com/contentplane/index-reconciler/domain/service"
	"github.com/contentplane/index-reconciler/infrastructure/cache"
	"github.com/contentplane/index-reconciler/infrastructure/database"
	"github.com/contentplane/index-reconciler/infrastructure/elasticsearch"
	"github.com/contentplane/index-reconciler/infrastructure/pipeline"
	"github.com/contentplane/index-reconciler/infrastructure/tenant"
	"github.com/contentplane/index-reconciler/pkg/logging"
	"github.com/contentplane/index-reconciler/pkg/metrics"
	"github.com/contentplane/index-reconciler/usecase"
)

// Application holds all application dependencies
type Application struct {
	config *config.Config
	logger *zap.Logger

	db       *sqlx.DB
	redis    *redis.Client
	pipeline *pipeline.KafkaPipeline

	server *httpdelivery.Server
}

func main() {
	app := &Application{}

	if err := app.Initialize(); err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.Start()
	app.WaitForShutdown()
}

// Initialize sets up all application dependencies
func (app *Application) Initialize() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	app.config = cfg

	logger, err := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: cfg.Service.Name,
		Development: cfg.Service.Debug,
	})
	if err != nil {
		return err
	}
	app.logger = logger

	logger.Info("Initializing index reconciler",
		zap.String("version", cfg.Service.Version),
		zap.String("environment", cfg.Service.Environment))

	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	app.db = db

	app.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.GetRedisAddr(),
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.Database,
		PoolSize: cfg.Cache.PoolSize,
	})

	startTenant := entity.TenantContext{TenantID: cfg.Service.DefaultTenant}

	posts := database.NewPostgresPostRepository(db, startTenant, cfg.Audit.PostTypes(), logger)

	docs, err := elasticsearch.NewStore(elasticsearch.Config{
		Addresses:   cfg.Elasticsearch.Addresses,
		Username:    cfg.Elasticsearch.Username,
		Password:    cfg.Elasticsearch.Password,
		IndexPrefix: cfg.Elasticsearch.IndexPrefix,
		MaxRetries:  cfg.Elasticsearch.MaxRetries,
		Timeout:     cfg.Elasticsearch.Timeout,
		CircuitBreaker: elasticsearch.CircuitBreakerConfig{
			MaxRequests:      cfg.Elasticsearch.CircuitBreaker.MaxRequests,
			Interval:         cfg.Elasticsearch.CircuitBreaker.Interval,
			Timeout:          cfg.Elasticsearch.CircuitBreaker.Timeout,
			FailureThreshold: cfg.Elasticsearch.CircuitBreaker.FailureThreshold,
		},
	}, startTenant, logger)
	if err != nil {
		return err
	}

	app.pipeline = pipeline.NewKafkaPipeline(pipeline.Config{
		Brokers:       cfg.Pipeline.Brokers,
		Topic:         cfg.Pipeline.Topic,
		BatchWait:     cfg.Pipeline.BatchWait,
		QueueCap:      cfg.Pipeline.QueueCap,
		BatchSize:     cfg.Pipeline.BatchSize,
		RatePerSecond: cfg.Pipeline.RatePerSecond,
	}, logger)

	summaryCache := cache.NewRedisCache(app.redis, cfg.Cache.SummaryTTL, logger)
	collector := metrics.NewCollector(cfg.Metrics.Namespace)

	auditor := service.NewAuditor(docs, logger)
	dispatcher := service.NewRepairDispatcher(app.pipeline, summaryCache.FlushScratch, logger)
	orchestrator := usecase.NewAuditOrchestrator(posts, docs, auditor, dispatcher, summaryCache, collector, cfg.Audit.BatchSize, logger)

	switcher := tenant.NewScopeSwitcher(posts, docs, startTenant, logger)
	fleet := usecase.NewFleetRunner(switcher, orchestrator, logger)

	app.server = httpdelivery.NewServer(cfg, orchestrator, dispatcher, fleet, collector, logger)

	return nil
}

// Start begins serving requests
func (app *Application) Start() {
	go func() {
		if err := app.server.Start(); err != nil {
			app.logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()
}

// WaitForShutdown blocks until a termination signal arrives, then shuts
// down gracefully.
func (app *Application) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.logger.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), app.config.Service.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	if err := app.pipeline.Close(); err != nil {
		app.logger.Error("Pipeline shutdown failed", zap.Error(err))
	}
	if err := app.redis.Close(); err != nil {
		app.logger.Error("Redis shutdown failed", zap.Error(err))
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error("Database shutdown failed", zap.Error(err))
	}

	app.logger.Info("Shutdown complete")
	_ = app.logger.Sync()
}
