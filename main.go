package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/config"
	"github.com/MUKTHARS/clmprod-sub000/handler"
	"github.com/MUKTHARS/clmprod-sub000/middleware"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Init(&logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: cfg.Tracing.ServiceName,
	})

	slog.Info("configuration loaded successfully", "path", *configPath)

	ctx := context.Background()
	shutdownTracing, err := service.InitTracing(ctx, &cfg.Tracing)
	if err != nil {
		slog.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	db, err := service.OpenDatabase(&cfg.Database)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}

	// Redis is optional; without it the pending-work cache and rate limits are
	// per process and ingestion is not locked.
	var (
		rdb          *redis.Client
		pendingCache service.PendingCache
		locker       service.IngestLocker
		limiter      middleware.Limiter
	)
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
		pendingCache = service.NewRedisPendingCache(rdb)
		locker = service.NewRedisIngestLocker(rdb, 30*time.Second)
		limiter = middleware.NewRedisLimiter(rdb, cfg.RateLimit.Requests, window)
	} else {
		pendingCache = service.NewMemoryPendingCache()
		limiter = middleware.NewMemoryLimiter(cfg.RateLimit.Requests, window)
	}

	var archive service.Archiver
	if cfg.Minio.Enabled {
		raw, err := service.NewRawArchive(&cfg.Minio)
		if err != nil {
			slog.Error("failed to initialize MINIO archive", "error", err)
			os.Exit(1)
		}
		if err := raw.EnsureBucket(ctx); err != nil {
			slog.Error("failed to ensure MINIO bucket", "error", err)
			os.Exit(1)
		}
		archive = raw
	}

	// Initialize services
	contracts := service.NewContractStore(db)
	comments := service.NewCommentStore(db)
	pending := service.NewPendingService(contracts, pendingCache, time.Duration(cfg.Redis.PendingTTLSeconds)*time.Second)
	workflow := service.NewWorkflowService(contracts, comments, pending)
	ingest := service.NewIngestService(cfg.Ingest.Seed, contracts, pending, locker, archive)

	// Initialize handlers
	if err := handler.RegisterValidators(); err != nil {
		slog.Error("failed to register validators", "error", err)
		os.Exit(1)
	}
	routes := &handler.Routes{
		Auth:      handler.NewAuthHandler(cfg),
		Contracts: handler.NewContractHandler(contracts),
		Workflow:  handler.NewWorkflowHandler(workflow),
		Comments:  handler.NewCommentHandler(workflow, contracts, comments),
		Pending:   handler.NewPendingHandler(pending),
		Ingest:    handler.NewIngestHandler(ingest),
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(&cfg.CORS))
	router.Use(middleware.RateLimit(limiter))

	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		body := gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["database"] = "unreachable"
		}
		c.JSON(status, body)
	})

	api := router.Group("/api")
	api.Use(noCacheMiddleware())
	routes.Register(api, middleware.AuthMiddleware(&cfg.Auth))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Error("failed to flush traces", "error", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	slog.Info("server exited gracefully")
}

// noCacheMiddleware keeps API responses out of browser and proxy caches
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Header("Pragma", "no-cache")
		c.Header("Expires", "0")
		c.Next()
	}
}
