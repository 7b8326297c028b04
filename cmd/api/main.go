package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adcanvas/adcanvas/internal/api"
	"github.com/adcanvas/adcanvas/internal/config"
	"github.com/adcanvas/adcanvas/internal/queue"
	"github.com/adcanvas/adcanvas/internal/ratelimit"
	"github.com/adcanvas/adcanvas/internal/store"
	"github.com/adcanvas/adcanvas/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[api] ", log.LstdFlags|log.Lmsgprefix)

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "adcanvas-api",
		Environment:  cfg.Trace.Environment,
		Exporter:     cfg.Trace.Exporter,
		OTLPEndpoint: cfg.Trace.OTLPEndpoint,
		OTLPInsecure: cfg.Trace.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	batches, images, closeStore, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("build store: %v", err)
	}
	defer closeStore()

	app := api.NewServer(logger, queueClient, batches, images, api.Options{
		RateLimiter: buildRateLimiter(cfg, logger),
		Tracer:      otel.Tracer("adcanvas/api"),
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.API.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}

func buildStores(ctx context.Context, cfg config.Config, logger *log.Logger) (store.BatchStore, store.ImageStore, func(), error) {
	switch cfg.Database.Driver {
	case "memory":
		logger.Printf("using in-memory store; batches will not be visible to a separate worker process")
		mem := store.NewMemoryStore()
		return mem, mem, func() {}, nil
	default:
		pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, pg, func() {
			if err := pg.Close(); err != nil {
				logger.Printf("store close error: %v", err)
			}
		}, nil
	}
}

func buildRateLimiter(cfg config.Config, logger *log.Logger) api.RateLimiter {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})

	limiter, err := ratelimit.NewRedisTokenBucket(client, cfg.API.RateLimitCapacity, cfg.API.RateLimitWindow, "")
	if err != nil {
		logger.Printf("rate limiter disabled: %v", err)
		return nil
	}
	return limiter
}
