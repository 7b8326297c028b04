package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adcanvas/adcanvas/internal/domain"
)

func TestMemoryStoreBatchLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	batch := domain.Batch{
		ID:        "b1",
		ProjectID: "p1",
		Status:    domain.BatchStatusCreated,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, ok, err := s.GetBatch(ctx, "b1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Status != domain.BatchStatusCreated {
		t.Fatalf("unexpected status %s", got.Status)
	}

	updated, err := s.UpdateBatchStatus(ctx, "b1", domain.BatchStatusProcessing)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.BatchStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}

	final, err := s.SetBatchOutcome(ctx, "b1", domain.BatchStatusCompleted,
		[]string{"one render failed"}, []string{"upscaler degraded"})
	if err != nil {
		t.Fatalf("set outcome: %v", err)
	}
	if final.Status != domain.BatchStatusCompleted || len(final.Errors) != 1 || len(final.Warnings) != 1 {
		t.Fatalf("unexpected outcome %+v", final)
	}

	if _, err := s.UpdateBatchStatus(ctx, "missing", domain.BatchStatusFailed); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("expected ErrBatchNotFound, got %v", err)
	}
}

func TestMemoryStoreImagesAreScopedToBatch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, img := range []domain.GeneratedImage{
		{ID: "i1", BatchID: "b1", Type: domain.ImageTypeProductOnly},
		{ID: "i2", BatchID: "b1", Type: domain.ImageTypeUGCStyle},
		{ID: "i3", BatchID: "b2", Type: domain.ImageTypeProductOnly},
	} {
		if err := s.InsertGeneratedImage(ctx, img); err != nil {
			t.Fatalf("insert %s: %v", img.ID, err)
		}
	}

	images, err := s.ListBatchImages(ctx, "b1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images for b1, got %d", len(images))
	}

	none, err := s.ListBatchImages(ctx, "b3")
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %v err=%v", none, err)
	}
}
