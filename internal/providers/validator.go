package providers

import (
	"context"
	"fmt"
	"image"
	"log"

	"github.com/adcanvas/adcanvas/internal/domain"
	"github.com/adcanvas/adcanvas/internal/imaging"
)

const (
	minAcceptableWidth  = 256
	minAcceptableHeight = 256

	// A composite whose luminance spread collapses below this is a flat
	// color field, which means generation produced a blank frame.
	minLumaSpread = 8
)

// HeuristicValidator runs cheap local checks on a composite. It never calls
// a provider, so it can gate the expensive enhancement stage without cost.
type HeuristicValidator struct {
	logger *log.Logger
}

func NewHeuristicValidator(logger *log.Logger) *HeuristicValidator {
	return &HeuristicValidator{logger: logger}
}

func (v *HeuristicValidator) Validate(_ context.Context, in ValidationInput) (domain.ValidationSummary, error) {
	summary := domain.ValidationSummary{Checks: map[string]bool{}}

	img, err := imaging.DecodeBase64Image("composite", in.GeneratedB64)
	if err != nil {
		summary.Checks["decodable"] = false
		summary.Errors = append(summary.Errors, fmt.Sprintf("composite is not a decodable image: %v", err))
		return summary, nil
	}
	summary.Checks["decodable"] = true

	bounds := img.Bounds()
	dimsOK := bounds.Dx() >= minAcceptableWidth && bounds.Dy() >= minAcceptableHeight
	summary.Checks["dimensions"] = dimsOK
	if !dimsOK {
		summary.Errors = append(summary.Errors,
			fmt.Sprintf("composite is %dx%d, below the %dx%d minimum", bounds.Dx(), bounds.Dy(), minAcceptableWidth, minAcceptableHeight))
	}

	notBlank := lumaSpread(img) >= minLumaSpread
	summary.Checks["not_blank"] = notBlank
	if !notBlank {
		summary.Errors = append(summary.Errors, "composite is a near-uniform color field")
	}

	if in.ProductB64 != "" {
		if _, err := imaging.DecodeBase64Image("product cutout", in.ProductB64); err != nil {
			summary.Warnings = append(summary.Warnings, fmt.Sprintf("product cutout unavailable for comparison: %v", err))
		}
	}

	summary.Passed = true
	for _, ok := range summary.Checks {
		if !ok {
			summary.Passed = false
		}
	}
	if !summary.Passed {
		v.logger.Printf("validation failed checks=%v errors=%v", summary.Checks, summary.Errors)
	}

	return summary, nil
}

// lumaSpread samples a coarse grid and returns max-min luminance.
func lumaSpread(img image.Image) int {
	bounds := img.Bounds()
	stepX := bounds.Dx() / 16
	stepY := bounds.Dy() / 16
	if stepX < 1 {
		stepX = 1
	}
	if stepY < 1 {
		stepY = 1
	}

	minLuma, maxLuma := 255, 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y += stepY {
		for x := bounds.Min.X; x < bounds.Max.X; x += stepX {
			r, g, b, _ := img.At(x, y).RGBA()
			luma := int((299*(r>>8) + 587*(g>>8) + 114*(b>>8)) / 1000)
			if luma < minLuma {
				minLuma = luma
			}
			if luma > maxLuma {
				maxLuma = luma
			}
		}
	}

	return maxLuma - minLuma
}
