package store

import (
	"context"
	"sync"
	"time"

	"github.com/adcanvas/adcanvas/internal/domain"
)

// MemoryStore backs local development and tests. It implements BatchStore,
// ImageStore, and UsageStore.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]domain.Batch
	images  map[string][]domain.GeneratedImage
	usage   []domain.RenderUsage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		batches: make(map[string]domain.Batch),
		images:  make(map[string][]domain.GeneratedImage),
	}
}

func (s *MemoryStore) CreateBatch(_ context.Context, batch domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches[batch.ID] = batch
	return nil
}

func (s *MemoryStore) GetBatch(_ context.Context, id string) (domain.Batch, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	batch, ok := s.batches[id]
	return batch, ok, nil
}

func (s *MemoryStore) UpdateBatchStatus(_ context.Context, id, status string) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch.Status = status
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return batch, nil
}

func (s *MemoryStore) SetBatchOutcome(_ context.Context, id, status string, errs, warnings []string) (domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch, ok := s.batches[id]
	if !ok {
		return domain.Batch{}, ErrBatchNotFound
	}

	batch.Status = status
	batch.Errors = append([]string(nil), errs...)
	batch.Warnings = append([]string(nil), warnings...)
	batch.UpdatedAt = time.Now().UTC()
	s.batches[id] = batch
	return batch, nil
}

func (s *MemoryStore) InsertGeneratedImage(_ context.Context, img domain.GeneratedImage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.BatchID] = append(s.images[img.BatchID], img)
	return nil
}

func (s *MemoryStore) ListBatchImages(_ context.Context, batchID string) ([]domain.GeneratedImage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.GeneratedImage(nil), s.images[batchID]...), nil
}

func (s *MemoryStore) InsertRenderUsage(_ context.Context, usage domain.RenderUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}
