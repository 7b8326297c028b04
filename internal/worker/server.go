package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/adcanvas/adcanvas/internal/config"
	"github.com/adcanvas/adcanvas/internal/domain"
	"github.com/adcanvas/adcanvas/internal/orchestrator"
	"github.com/adcanvas/adcanvas/internal/queue"
	"github.com/adcanvas/adcanvas/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// batchRunner is the orchestrator surface the worker consumes.
type batchRunner interface {
	GenerateAudienceImages(ctx context.Context, batch domain.Batch, progress orchestrator.ProgressFunc) (orchestrator.Result, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	runner        batchRunner
	webhookClient webhookSender
	batches       store.BatchStore
	metrics       *metrics
	tracer        trace.Tracer
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	runner batchRunner,
	webhookClient webhookSender,
	batches store.BatchStore,
) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("batch runner is required")
	}
	if batches == nil {
		return nil, fmt.Errorf("batch store is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveBatches)),
		runner:        runner,
		webhookClient: webhookClient,
		batches:       batches,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("adcanvas/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateBatch, s.handleGenerateBatch)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGenerateBatch(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.BatchStatusFailed

	payload, err := queue.ParseGenerateBatchPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.generate_batch", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("batch.id", payload.BatchID),
		attribute.String("batch.project_id", payload.ProjectID),
		attribute.String("batch.audience_id", payload.AudienceID),
	)
	defer span.End()
	defer func() {
		s.metrics.batchDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.batchesTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeBatches.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeBatches.Dec()
	}()

	batch, ok, err := s.batches.GetBatch(ctx, payload.BatchID)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", payload.BatchID, err)
	}
	if !ok {
		s.logger.Printf("batch vanished batch_id=%s", payload.BatchID)
		return fmt.Errorf("batch %s not found: %w", payload.BatchID, asynq.SkipRetry)
	}

	s.logger.Printf(
		"Rendering... batch_id=%s audience_id=%s images=%d",
		batch.ID,
		batch.AudienceID,
		batch.Config.TotalImages(),
	)

	s.updateBatchStatus(ctx, batch.ID, domain.BatchStatusProcessing)

	progress := func(current, total int, message string) {
		s.logger.Printf("batch=%s progress %d/%d: %s", batch.ID, current, total, message)
	}

	result, runErr := s.runner.GenerateAudienceImages(ctx, batch, progress)
	s.metrics.imagesGeneratedTotal.Add(float64(len(result.Images)))
	s.metrics.degradedStagesTotal.Add(float64(len(result.Warnings)))
	s.metrics.renderErrorsTotal.Add(float64(len(result.Errors)))

	if runErr != nil {
		errs := append(result.Errors, runErr.Error())
		s.setBatchOutcome(ctx, batch.ID, domain.BatchStatusFailed, errs, result.Warnings)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "batch failed")
		s.dispatchWebhook(ctx, payload, "batch.failed", map[string]any{
			"batch_id":     batch.ID,
			"status":       domain.BatchStatusFailed,
			"audience_id":  batch.AudienceID,
			"requested_at": payload.RequestedAt,
			"failed_at":    time.Now().UTC(),
			"errors":       errs,
		})
		return fmt.Errorf("run batch: %w", runErr)
	}

	s.logger.Printf("Rendered batch_id=%s images=%d errors=%d warnings=%d",
		batch.ID, len(result.Images), len(result.Errors), len(result.Warnings))
	s.setBatchOutcome(ctx, batch.ID, result.Status, result.Errors, result.Warnings)

	if err := s.dispatchWebhook(ctx, payload, "batch.completed", map[string]any{
		"batch_id":     batch.ID,
		"status":       result.Status,
		"audience_id":  batch.AudienceID,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
		"images":       result.Images,
		"errors":       result.Errors,
		"warnings":     result.Warnings,
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return err
	}

	outcome = result.Status
	span.SetStatus(codes.Ok, "rendered")
	return nil
}

func (s *Server) updateBatchStatus(ctx context.Context, batchID, status string) {
	if _, err := s.batches.UpdateBatchStatus(ctx, batchID, status); err != nil {
		s.logger.Printf("batch status update failed batch_id=%s status=%s err=%v", batchID, status, err)
	}
}

func (s *Server) setBatchOutcome(ctx context.Context, batchID, status string, errs, warnings []string) {
	if _, err := s.batches.SetBatchOutcome(ctx, batchID, status, errs, warnings); err != nil {
		s.logger.Printf("batch outcome update failed batch_id=%s status=%s err=%v", batchID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.GenerateBatchPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed batch_id=%s event=%s err=%v", payload.BatchID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
