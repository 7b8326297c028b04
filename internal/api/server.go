package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/adcanvas/adcanvas/internal/domain"
	"github.com/adcanvas/adcanvas/internal/id"
	"github.com/adcanvas/adcanvas/internal/queue"
	"github.com/adcanvas/adcanvas/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
)

const defaultRateLimitUserIDHeader = "X-User-ID"

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	batches               store.BatchStore
	images                store.ImageStore
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueGenerateBatch(ctx context.Context, payload queue.GenerateBatchPayload) (*asynq.TaskInfo, error)
}

// Options carries the optional middleware collaborators. Zero values
// disable the corresponding middleware.
type Options struct {
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	Tracer                trace.Tracer
}

func NewServer(logger *log.Logger, queueClient queueEnqueuer, batches store.BatchStore, images store.ImageStore, opts Options) *Server {
	header := strings.TrimSpace(opts.RateLimitUserIDHeader)
	if header == "" {
		header = defaultRateLimitUserIDHeader
	}

	s := &Server{
		logger:                logger,
		queueClient:           queueClient,
		batches:               batches,
		images:                images,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: header,
		metrics:               newMetrics(),
		tracer:                opts.Tracer,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.withRateLimit(s.metrics.withHTTPMetrics(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/batches", s.handleCreateBatch)
	s.mux.HandleFunc("POST /v1/batches/", s.handleStartBatch)
	s.mux.HandleFunc("GET /v1/batches/", s.handleGetBatch)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	batch := domain.Batch{
		ID:         id.New(),
		ProjectID:  strings.TrimSpace(req.ProjectID),
		AudienceID: strings.TrimSpace(req.AudienceID),
		Status:     domain.BatchStatusCreated,
		WebhookURL: req.WebhookURL,
		Config:     req.Config,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.batches.CreateBatch(r.Context(), batch); err != nil {
		s.logger.Printf("create batch failed for batch %s: %v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create batch"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":     batch.ID,
		"status":       batch.Status,
		"total_images": batch.Config.TotalImages(),
		"start_url":    fmt.Sprintf("/v1/batches/%s/start", batch.ID),
	})
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromStartPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed for batch %s: %v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	if batch.Status != domain.BatchStatusCreated {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": fmt.Sprintf("batch is already %s", batch.Status),
		})
		return
	}

	payload := queue.GenerateBatchPayload{
		BatchID:     batch.ID,
		ProjectID:   batch.ProjectID,
		AudienceID:  batch.AudienceID,
		WebhookURL:  batch.WebhookURL,
		RequestedAt: time.Now().UTC(),
	}

	taskInfo, err := s.queueClient.EnqueueGenerateBatch(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed for batch %s: %v", batch.ID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue batch"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.batches.UpdateBatchStatus(r.Context(), batch.ID, domain.BatchStatusQueued); err != nil {
		s.logger.Printf("update status failed for batch %s: %v", batch.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batch_id":    batch.ID,
		"status":      domain.BatchStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	batchID, err := extractBatchIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	batch, ok, err := s.batches.GetBatch(r.Context(), batchID)
	if err != nil {
		s.logger.Printf("fetch batch failed for batch %s: %v", batchID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
		return
	}

	var images []domain.GeneratedImage
	if s.images != nil {
		images, err = s.images.ListBatchImages(r.Context(), batch.ID)
		if err != nil {
			s.logger.Printf("list images failed for batch %s: %v", batch.ID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load batch images"})
			return
		}
	}
	if images == nil {
		images = []domain.GeneratedImage{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"batch_id":     batch.ID,
		"project_id":   batch.ProjectID,
		"audience_id":  batch.AudienceID,
		"status":       batch.Status,
		"total_images": batch.Config.TotalImages(),
		"errors":       batch.Errors,
		"warnings":     batch.Warnings,
		"images":       images,
		"created_at":   batch.CreatedAt,
		"updated_at":   batch.UpdatedAt,
	})
}

func extractBatchIDFromStartPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/batches/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "start" {
		return "", errors.New("expected path format /v1/batches/{id}/start")
	}
	return parts[0], nil
}

func extractBatchIDFromPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/batches/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 1 || parts[0] == "" {
		return "", errors.New("expected path format /v1/batches/{id}")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 16 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
