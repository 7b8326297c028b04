package worker

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/adcanvas/adcanvas/internal/domain"
	"github.com/adcanvas/adcanvas/internal/orchestrator"
	"github.com/adcanvas/adcanvas/internal/queue"
	"github.com/adcanvas/adcanvas/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

type fakeRunner struct {
	result   orchestrator.Result
	err      error
	gotBatch domain.Batch
}

func (f *fakeRunner) GenerateAudienceImages(_ context.Context, batch domain.Batch, progress orchestrator.ProgressFunc) (orchestrator.Result, error) {
	f.gotBatch = batch
	if progress != nil {
		progress(1, batch.Config.TotalImages(), "rendering")
	}
	return f.result, f.err
}

type captureWebhook struct {
	event   string
	payload any
}

func (c *captureWebhook) Send(_ context.Context, _ string, event string, payload any) error {
	c.event = event
	c.payload = payload
	return nil
}

func newTestServer(t *testing.T, runner batchRunner, batches store.BatchStore, hook webhookSender) *Server {
	t.Helper()
	return &Server{
		logger:        log.New(io.Discard, "", 0),
		sem:           make(chan struct{}, 1),
		runner:        runner,
		webhookClient: hook,
		batches:       batches,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("adcanvas/worker-test"),
	}
}

func seedBatch(t *testing.T, batches *store.MemoryStore) domain.Batch {
	t.Helper()
	batch := domain.Batch{
		ID:         "batch-1",
		ProjectID:  "proj-1",
		AudienceID: "aud-1",
		Status:     domain.BatchStatusQueued,
		WebhookURL: "https://hooks.example.com/adcanvas",
		Config: domain.GenerationConfig{
			Counts: map[domain.ImageType]int{domain.ImageTypeProductOnly: 2},
			Products: []domain.ProductRef{
				{ID: "prod-1", ImageURL: "https://cdn.test/p.jpg"},
			},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := batches.CreateBatch(context.Background(), batch); err != nil {
		t.Fatalf("seed batch: %v", err)
	}
	return batch
}

func batchTask(t *testing.T, payload queue.GenerateBatchPayload) *asynq.Task {
	t.Helper()
	task, err := queue.NewGenerateBatchTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return task
}

func TestHandleGenerateBatchCompletesAndNotifies(t *testing.T) {
	batches := store.NewMemoryStore()
	batch := seedBatch(t, batches)

	runner := &fakeRunner{result: orchestrator.Result{
		Status: domain.BatchStatusCompleted,
		Images: []domain.GeneratedImage{
			{ID: "i1", BatchID: batch.ID},
			{ID: "i2", BatchID: batch.ID},
		},
		Warnings: []string{"upscale: provider degraded"},
	}}
	hook := &captureWebhook{}
	s := newTestServer(t, runner, batches, hook)

	err := s.handleGenerateBatch(context.Background(), batchTask(t, queue.GenerateBatchPayload{
		BatchID:    batch.ID,
		WebhookURL: batch.WebhookURL,
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if runner.gotBatch.ID != batch.ID {
		t.Fatalf("runner received batch %q", runner.gotBatch.ID)
	}

	final, ok, err := batches.GetBatch(context.Background(), batch.ID)
	if err != nil || !ok {
		t.Fatalf("load final batch: ok=%v err=%v", ok, err)
	}
	if final.Status != domain.BatchStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if len(final.Warnings) != 1 {
		t.Fatalf("expected persisted warnings, got %v", final.Warnings)
	}

	if hook.event != "batch.completed" {
		t.Fatalf("expected batch.completed webhook, got %q", hook.event)
	}
}

func TestHandleGenerateBatchRecordsFailure(t *testing.T) {
	batches := store.NewMemoryStore()
	batch := seedBatch(t, batches)

	runner := &fakeRunner{
		result: orchestrator.Result{
			Status: domain.BatchStatusFailed,
			Errors: []string{"product_only image 1: generate background: quota"},
		},
		err: errors.New("all renders failed"),
	}
	hook := &captureWebhook{}
	s := newTestServer(t, runner, batches, hook)

	err := s.handleGenerateBatch(context.Background(), batchTask(t, queue.GenerateBatchPayload{
		BatchID:    batch.ID,
		WebhookURL: batch.WebhookURL,
	}))
	if err == nil {
		t.Fatal("expected handler error for failed batch")
	}

	final, _, _ := batches.GetBatch(context.Background(), batch.ID)
	if final.Status != domain.BatchStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if len(final.Errors) != 2 {
		t.Fatalf("expected per-image error plus terminal error, got %v", final.Errors)
	}

	if hook.event != "batch.failed" {
		t.Fatalf("expected batch.failed webhook, got %q", hook.event)
	}
}

func TestHandleGenerateBatchSkipsRetryForUnknownBatch(t *testing.T) {
	s := newTestServer(t, &fakeRunner{}, store.NewMemoryStore(), nil)

	err := s.handleGenerateBatch(context.Background(), batchTask(t, queue.GenerateBatchPayload{
		BatchID: "does-not-exist",
	}))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
