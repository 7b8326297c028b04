package domain

import "time"

// ValidationSummary captures the outcome of the external quality checks run
// on a composite before enhancement.
type ValidationSummary struct {
	Passed   bool            `json:"passed"`
	Checks   map[string]bool `json:"checks,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// GeneratedImage is written exactly once per successful render and never
// mutated afterwards.
type GeneratedImage struct {
	ID          string            `json:"id"`
	BatchID     string            `json:"batch_id"`
	Type        ImageType         `json:"type"`
	AudienceID  string            `json:"audience_id"`
	PersonaID   string            `json:"persona_id,omitempty"`
	ProductIDs  []string          `json:"product_ids"`
	StoragePath string            `json:"storage_path"`
	StorageURL  string            `json:"storage_url,omitempty"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	Validation  ValidationSummary `json:"validation"`
	CreatedAt   time.Time         `json:"created_at"`
}

// RenderUsage aggregates per-batch compute accounting.
type RenderUsage struct {
	BatchID         string
	ImagesGenerated int
	PixelsRendered  int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
