package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"formkit/internal/api"
	"formkit/internal/auth"
	"formkit/internal/config"
	"formkit/internal/db"
	"formkit/internal/jobs"
	"formkit/internal/prepop"
	"formkit/internal/progress"
	"formkit/internal/pubsub"
	"formkit/internal/schema"
	"formkit/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// formStore is what both the Postgres pool and the in-memory store provide
type formStore interface {
	service.Store
	prepop.SubmissionLookup
}

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd != "serve" && cmd != "migrate" {
		log.Fatalf("Unknown command: %s (use 'serve' or 'migrate')", cmd)
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cmd == "migrate" {
		if cfg.Postgres.URL == "" {
			logger.Fatal("DATABASE_URL is required for migrate")
		}
		if err := db.Migrate(context.Background(), cfg.Postgres.URL, logger); err != nil {
			logger.Fatal("Migration failed", zap.Error(err))
		}
		logger.Info("Migrations applied")
		return
	}

	if err := serve(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func serve(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Database connection
	var store formStore
	if cfg.Postgres.URL != "" {
		dbPool, err := db.NewPool(ctx, cfg.Postgres.URL, logger)
		if err != nil {
			return err
		}
		defer dbPool.Close()
		store = dbPool.Queries
	} else {
		logger.Warn("No database configured, keeping forms in memory")
		store = db.NewMemory(nil)
	}

	// Redis connection
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return err
	}

	bus := pubsub.New(rdb, logger)
	schemaComp := schema.NewCompilerWithCache(64, config.Duration(cfg.Prepop.CacheTTL, prepop.DefaultCacheTTL))

	coord := prepop.NewCoordinator(logger,
		prepop.URLResolver{},
		prepop.NewAPIResolver(&http.Client{}, prepop.APIOptions{
			Timeout:       config.Duration(cfg.Prepop.Timeout, prepop.DefaultTimeout),
			RetryAttempts: cfg.Prepop.RetryAttempts,
			BaseDelay:     config.Duration(cfg.Prepop.BaseDelay, prepop.DefaultBaseDelay),
			CacheTTL:      config.Duration(cfg.Prepop.CacheTTL, prepop.DefaultCacheTTL),
			CacheSize:     cfg.Prepop.CacheSize,
		}, logger),
		prepop.ProfileResolver{Provider: auth.ContextProfiles{}},
		&prepop.PreviousResolver{Lookup: store},
	)

	// Background jobs
	stats := &jobs.Stats{
		Forms:  store,
		Parser: schemaComp,
		Cache:  jobs.NewStatsCache(rdb, config.Duration(cfg.Jobs.StatsTTL, 10*time.Minute)),
		Log:    logger,
	}
	jobServer, jobClient := jobs.NewJobServer(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.Jobs.Concurrency, stats, logger)
	go func() {
		if err := jobServer.Start(); err != nil {
			logger.Fatal("Job server failed", zap.Error(err))
		}
	}()
	defer jobServer.Stop()

	formSvc := service.NewFormService(store, schemaComp, bus, logger)
	formSvc.SetCoordinator(coord)
	formSvc.SetJobClient(jobs.NewAsynqEnqueuer(jobClient))

	// HTTP router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(config.Duration(cfg.Server.RequestTimeout, 60*time.Second)))

	r.Mount("/", api.Routes(api.Dependencies{
		Forms:    formSvc,
		Stats:    stats,
		Events:   bus.Streams(),
		Progress: progress.NewRedisKV(rdb, progress.RetentionDays(cfg.Progress.RetentionDays)),
		JWT:      auth.NewJWTConfig(cfg.Server.JWTSecret),
		Log:      logger,
	}))

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	logger.Info("Starting server", zap.String("addr", cfg.Server.Addr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.Server.ShutdownTimeout, 5*time.Second))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
	return nil
}
