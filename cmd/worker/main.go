package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/adcanvas/adcanvas/internal/config"
	"github.com/adcanvas/adcanvas/internal/enhance"
	"github.com/adcanvas/adcanvas/internal/imaging"
	"github.com/adcanvas/adcanvas/internal/orchestrator"
	"github.com/adcanvas/adcanvas/internal/providers"
	"github.com/adcanvas/adcanvas/internal/storage"
	"github.com/adcanvas/adcanvas/internal/store"
	"github.com/adcanvas/adcanvas/internal/telemetry"
	"github.com/adcanvas/adcanvas/internal/webhook"
	"github.com/adcanvas/adcanvas/internal/worker"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := log.New(os.Stdout, "[worker] ", log.LstdFlags|log.Lmsgprefix)

	if err := imaging.Startup(); err != nil {
		logger.Fatalf("start imaging runtime: %v", err)
	}
	defer imaging.Shutdown()

	ctx := context.Background()
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "adcanvas-worker",
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

	pg, err := store.NewPostgresStore(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("connect store: %v", err)
	}
	defer func() {
		if err := pg.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	storageClient, err := storage.NewClient(storage.Config{
		Endpoint:      cfg.Storage.Endpoint,
		Access:        cfg.Storage.AccessKey,
		Secret:        cfg.Storage.SecretKey,
		Bucket:        cfg.Storage.Bucket,
		UseSSL:        cfg.Storage.UseSSL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		logger.Fatalf("create storage client: %v", err)
	}
	if err := storageClient.EnsureBucket(ctx); err != nil {
		logger.Fatalf("ensure bucket: %v", err)
	}

	gemini := providers.NewGeminiClient(logger, providers.GeminiConfig{
		APIKey:     cfg.Provider.GeminiAPIKey,
		BaseURL:    cfg.Provider.GeminiBaseURL,
		ImageModel: cfg.Provider.ImageModel,
		TextModel:  cfg.Provider.TextModel,
		Retry:      providers.RetryPolicy{MaxAttempts: cfg.Provider.MaxAttempts},
	})

	// Subject enhancement is an optional provider capability.
	var subject enhance.SubjectEnhancer
	if se, ok := any(gemini).(enhance.SubjectEnhancer); ok {
		subject = se
	}
	enhancer := enhance.New(logger, gemini, gemini, subject)

	orch := orchestrator.New(logger, orchestrator.Deps{
		Isolator:  gemini,
		Planner:   gemini,
		Generator: gemini,
		Validator: providers.NewHeuristicValidator(logger),
		Enhancer:  enhancer,
		Uploader:  storageClient,
		Images:    pg,
		Usage:     pg,
	})

	webhookClient := webhook.NewClient(webhook.Config{
		SigningSecret:  cfg.Webhook.SigningSecret,
		Timeout:        10 * time.Second,
		MaxAttempts:    4,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	})

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, orch, webhookClient, pg)
	if err != nil {
		logger.Fatalf("build worker: %v", err)
	}

	go func() {
		metricsServer := &http.Server{
			Addr:         cfg.Worker.MetricsAddr,
			Handler:      srv.MetricsHandler(),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_batches=%d queue=%s redis=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveBatches,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
	)

	if err := srv.Run(); err != nil {
		logger.Fatalf("worker failed: %v", err)
	}
}
