package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type ImageType string

const (
	ImageTypeProductOnly    ImageType = "product_only"
	ImageTypeProductPersona ImageType = "product_persona"
	ImageTypeUGCStyle       ImageType = "ugc_style"
)

const (
	BatchStatusCreated    = "created"
	BatchStatusQueued     = "queued"
	BatchStatusProcessing = "processing"
	BatchStatusCompleted  = "completed"
	BatchStatusFailed     = "failed"
)

func ValidImageType(t ImageType) bool {
	switch t {
	case ImageTypeProductOnly, ImageTypeProductPersona, ImageTypeUGCStyle:
		return true
	default:
		return false
	}
}

// ProductRef points at a product whose isolated cutout will be composited.
type ProductRef struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url"`
}

type Persona struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
}

type BrandGuidelines struct {
	Palette []string `json:"palette,omitempty"`
	Tone    string   `json:"tone,omitempty"`
	Notes   string   `json:"notes,omitempty"`
}

// GenerationConfig describes one batch: how many variations of each image
// type to render and how the product should be sized and placed.
type GenerationConfig struct {
	Counts             map[ImageType]int `json:"counts"`
	Products           []ProductRef      `json:"products"`
	Persona            *Persona          `json:"persona,omitempty"`
	Brand              BrandGuidelines   `json:"brand,omitempty"`
	SceneLocation      string            `json:"scene_location,omitempty"`
	ProductSizePercent float64           `json:"product_size_percent,omitempty"`
	VerticalPosition   string            `json:"vertical_position,omitempty"`
	HorizontalPosition string            `json:"horizontal_position,omitempty"`
	DisableShadow      bool              `json:"disable_shadow,omitempty"`
	UpscaleFactor      int               `json:"upscale_factor,omitempty"`
}

type CreateBatchRequest struct {
	ProjectID  string           `json:"project_id"`
	AudienceID string           `json:"audience_id"`
	WebhookURL string           `json:"webhook_url,omitempty"`
	Config     GenerationConfig `json:"config"`
}

type Batch struct {
	ID         string
	ProjectID  string
	AudienceID string
	Status     string
	WebhookURL string
	Config     GenerationConfig
	Errors     []string
	Warnings   []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateBatchRequest) Validate() error {
	if strings.TrimSpace(r.ProjectID) == "" {
		return errors.New("project_id is required")
	}
	if strings.TrimSpace(r.AudienceID) == "" {
		return errors.New("audience_id is required")
	}
	if len(r.Config.Products) == 0 {
		return errors.New("config.products must contain at least one product")
	}
	for i, p := range r.Config.Products {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("config.products[%d].id is required", i)
		}
		if strings.TrimSpace(p.ImageURL) == "" {
			return fmt.Errorf("config.products[%d].image_url is required", i)
		}
	}
	if len(r.Config.Counts) == 0 {
		return errors.New("config.counts must request at least one image type")
	}
	for imageType, count := range r.Config.Counts {
		if !ValidImageType(imageType) {
			return fmt.Errorf("unsupported image type: %s", imageType)
		}
		if count < 1 {
			return fmt.Errorf("config.counts[%s] must be positive", imageType)
		}
		if imageType != ImageTypeProductOnly && r.Config.Persona == nil {
			return fmt.Errorf("config.persona is required for image type %s", imageType)
		}
	}
	if r.Config.ProductSizePercent < 0 || r.Config.ProductSizePercent > 1 {
		return errors.New("config.product_size_percent must be within [0, 1]")
	}
	if r.Config.UpscaleFactor < 0 || r.Config.UpscaleFactor > 4 {
		return errors.New("config.upscale_factor must be within [0, 4]")
	}
	return nil
}

// TotalImages is the number of renders the batch will attempt.
func (c GenerationConfig) TotalImages() int {
	total := 0
	for _, count := range c.Counts {
		total += count
	}
	return total
}
