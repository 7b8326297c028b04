package store

import (
	"context"
	"errors"

	"github.com/adcanvas/adcanvas/internal/domain"
)

var ErrBatchNotFound = errors.New("batch not found")

type BatchStore interface {
	CreateBatch(ctx context.Context, batch domain.Batch) error
	GetBatch(ctx context.Context, id string) (domain.Batch, bool, error)
	UpdateBatchStatus(ctx context.Context, id, status string) (domain.Batch, error)
	// SetBatchOutcome records the terminal status together with the errors
	// and warnings the run accumulated.
	SetBatchOutcome(ctx context.Context, id, status string, errs, warnings []string) (domain.Batch, error)
}

type ImageStore interface {
	InsertGeneratedImage(ctx context.Context, img domain.GeneratedImage) error
	ListBatchImages(ctx context.Context, batchID string) ([]domain.GeneratedImage, error)
}

type UsageStore interface {
	InsertRenderUsage(ctx context.Context, usage domain.RenderUsage) error
}
