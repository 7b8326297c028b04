package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/adcanvas/adcanvas/internal/domain"
	"github.com/adcanvas/adcanvas/internal/enhance"
	"github.com/adcanvas/adcanvas/internal/id"
	"github.com/adcanvas/adcanvas/internal/imaging"
	"github.com/adcanvas/adcanvas/internal/providers"
	"github.com/adcanvas/adcanvas/internal/storage"
)

// ErrNoProducts means every requested product failed isolation, so the batch
// cannot render anything at all.
var ErrNoProducts = errors.New("no product could be isolated")

// ErrInvalidBatch marks preconditions no amount of retrying will fix.
var ErrInvalidBatch = errors.New("batch is not renderable")

// Uploader persists a finished render.
type Uploader interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) (storage.StoredObject, error)
}

// ImageStore records one immutable row per successful render.
type ImageStore interface {
	InsertGeneratedImage(ctx context.Context, img domain.GeneratedImage) error
}

// UsageRecorder is optional compute accounting.
type UsageRecorder interface {
	InsertRenderUsage(ctx context.Context, usage domain.RenderUsage) error
}

// Enhancer runs the realism-restoration sequence on a composite.
type Enhancer interface {
	Enhance(ctx context.Context, in enhance.Input) enhance.Output
}

// ProgressFunc receives best-effort progress updates. Panics inside the
// callback are swallowed; reporting must never take a batch down.
type ProgressFunc func(current, total int, message string)

// Result is the outcome of a whole batch run. A batch fails only when it
// produced zero images; any partial success completes with the per-image
// errors carried alongside.
type Result struct {
	Status   string
	Images   []domain.GeneratedImage
	Errors   []string
	Warnings []string
}

// Orchestrator drives one batch end to end: for every requested image it
// isolates the assigned product (cached per product), renders a background,
// composites, grades, validates, enhances, uploads, and records.
type Orchestrator struct {
	logger     *log.Logger
	isolator   providers.Isolator
	planner    providers.ScenePlanner
	generator  providers.Generator
	validator  providers.Validator
	enhancer   Enhancer
	compositor *imaging.Compositor
	uploader   Uploader
	images     ImageStore
	usage      UsageRecorder
}

type Deps struct {
	Isolator  providers.Isolator
	Planner   providers.ScenePlanner
	Generator providers.Generator
	Validator providers.Validator
	Enhancer  Enhancer
	Uploader  Uploader
	Images    ImageStore
	Usage     UsageRecorder
}

func New(logger *log.Logger, deps Deps) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		isolator:   deps.Isolator,
		planner:    deps.Planner,
		generator:  deps.Generator,
		validator:  deps.Validator,
		enhancer:   deps.Enhancer,
		compositor: imaging.NewCompositor(logger),
		uploader:   deps.Uploader,
		images:     deps.Images,
		usage:      deps.Usage,
	}
}

// productCutout pairs a product with its isolated, alpha-carrying render.
type productCutout struct {
	ref      domain.ProductRef
	imageB64 string
}

// cutoutResult caches one isolation attempt. Renders assigned to a product
// whose isolation failed fail themselves instead of borrowing another
// product's cutout.
type cutoutResult struct {
	imageB64 string
	err      error
}

func (o *Orchestrator) GenerateAudienceImages(ctx context.Context, batch domain.Batch, progress ProgressFunc) (Result, error) {
	started := time.Now()
	cfg := batch.Config
	total := cfg.TotalImages()
	res := Result{}

	report := func(current int, message string) {
		if progress == nil {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				o.logger.Printf("progress callback panicked: %v", r)
			}
		}()
		progress(current, total, message)
	}

	switch {
	case len(cfg.Products) == 0:
		res.Status = domain.BatchStatusFailed
		return res, fmt.Errorf("batch %s has no products: %w", batch.ID, ErrInvalidBatch)
	case total == 0:
		res.Status = domain.BatchStatusFailed
		return res, fmt.Errorf("batch %s requests no images: %w", batch.ID, ErrInvalidBatch)
	case batch.AudienceID == "":
		res.Status = domain.BatchStatusFailed
		return res, fmt.Errorf("batch %s has no audience: %w", batch.ID, ErrInvalidBatch)
	}

	report(0, "isolating products")

	// Isolation is cached per product; a failed attempt stays in the cache
	// and fails every render assigned to that product.
	cutouts := make(map[string]cutoutResult, len(cfg.Products))
	usable := 0
	for _, product := range cfg.Products {
		b64, err := o.isolator.IsolateProduct(ctx, product.ImageURL)
		if err != nil {
			o.logger.Printf("batch=%s product=%s isolation failed: %v", batch.ID, product.ID, err)
		} else {
			usable++
		}
		cutouts[product.ID] = cutoutResult{imageB64: b64, err: err}
	}
	if usable == 0 {
		for _, product := range cfg.Products {
			res.Errors = append(res.Errors, fmt.Sprintf("product %s: isolation failed: %v", product.ID, cutouts[product.ID].err))
		}
		res.Status = domain.BatchStatusFailed
		return res, fmt.Errorf("batch %s: %w", batch.ID, ErrNoProducts)
	}

	var pixels int64
	current := 0
	for _, imageType := range []domain.ImageType{domain.ImageTypeProductOnly, domain.ImageTypeProductPersona, domain.ImageTypeUGCStyle} {
		count := cfg.Counts[imageType]
		for i := 0; i < count; i++ {
			if err := ctx.Err(); err != nil {
				res.Status = statusFor(len(res.Images))
				return res, err
			}

			current++
			report(current, fmt.Sprintf("rendering %s image %d of %d", imageType, current, total))

			product := cfg.Products[(current-1)%len(cfg.Products)]
			cutout := cutouts[product.ID]
			if cutout.err != nil {
				o.logger.Printf("batch=%s type=%s render %d failed: product %s has no cutout: %v", batch.ID, imageType, current, product.ID, cutout.err)
				res.Errors = append(res.Errors, fmt.Sprintf("%s image %d: isolate product %s: %v", imageType, current, product.ID, cutout.err))
				continue
			}

			img, warnings, err := o.renderOne(ctx, batch, imageType, productCutout{ref: product, imageB64: cutout.imageB64})
			res.Warnings = append(res.Warnings, warnings...)
			if err != nil {
				o.logger.Printf("batch=%s type=%s render %d failed: %v", batch.ID, imageType, current, err)
				res.Errors = append(res.Errors, fmt.Sprintf("%s image %d: %v", imageType, current, err))
				continue
			}

			res.Images = append(res.Images, img)
			pixels += int64(img.Width) * int64(img.Height)
		}
	}

	res.Status = statusFor(len(res.Images))
	report(total, "batch finished")

	if o.usage != nil {
		err := o.usage.InsertRenderUsage(ctx, domain.RenderUsage{
			BatchID:         batch.ID,
			ImagesGenerated: len(res.Images),
			PixelsRendered:  pixels,
			ComputeTimeMS:   time.Since(started).Milliseconds(),
			CreatedAt:       time.Now().UTC(),
		})
		if err != nil {
			o.logger.Printf("batch=%s usage accounting failed: %v", batch.ID, err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("usage accounting: %v", err))
		}
	}

	if res.Status == domain.BatchStatusFailed {
		return res, fmt.Errorf("batch %s: all %d renders failed", batch.ID, total)
	}
	return res, nil
}

func (o *Orchestrator) renderOne(ctx context.Context, batch domain.Batch, imageType domain.ImageType, cutout productCutout) (domain.GeneratedImage, []string, error) {
	var warnings []string
	cfg := batch.Config

	scene := o.planScene(ctx, batch, imageType, cutout.ref, &warnings)

	background, err := o.generator.GenerateBackground(ctx, scene)
	if err != nil {
		return domain.GeneratedImage{}, warnings, fmt.Errorf("generate background: %w", err)
	}

	composite, err := o.compositor.CompositeProduct(background, cutout.imageB64, imaging.CompositingOptions{
		ProductSizePercent: cfg.ProductSizePercent,
		VerticalPosition:   cfg.VerticalPosition,
		HorizontalPosition: cfg.HorizontalPosition,
		DisableShadow:      cfg.DisableShadow,
	})
	if err != nil {
		return domain.GeneratedImage{}, warnings, fmt.Errorf("composite: %w", err)
	}

	graded, err := imaging.ApplyCinematicGradeBase64(composite.Image)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("color grade skipped: %v", err))
		graded = composite.Image
	}

	validation := o.validate(ctx, graded, cutout.imageB64, batch, imageType, &warnings)

	enhanced := o.enhancer.Enhance(ctx, enhance.Input{
		ImageB64:    graded,
		OverlayB64:  composite.Overlay,
		ImageType:   imageType,
		ScaleFactor: cfg.UpscaleFactor,
	})
	warnings = append(warnings, enhanced.Warnings...)

	final, err := imaging.DecodeBase64Image("final image", enhanced.ImageB64)
	if err != nil {
		return domain.GeneratedImage{}, warnings, fmt.Errorf("final image unusable: %w", err)
	}
	data, err := imaging.EncodePNG(final)
	if err != nil {
		return domain.GeneratedImage{}, warnings, fmt.Errorf("encode final image: %w", err)
	}

	imageID := id.New()
	objectKey := fmt.Sprintf("batches/%s/%s/%s.png", batch.ID, imageType, imageID)
	stored, err := o.uploader.Upload(ctx, objectKey, data, "image/png")
	if err != nil {
		return domain.GeneratedImage{}, warnings, fmt.Errorf("upload: %w", err)
	}

	img := domain.GeneratedImage{
		ID:          imageID,
		BatchID:     batch.ID,
		Type:        imageType,
		AudienceID:  batch.AudienceID,
		ProductIDs:  []string{cutout.ref.ID},
		StoragePath: stored.Path,
		StorageURL:  stored.URL,
		Width:       final.Bounds().Dx(),
		Height:      final.Bounds().Dy(),
		Validation:  validation,
		CreatedAt:   time.Now().UTC(),
	}
	if cfg.Persona != nil && imageType != domain.ImageTypeProductOnly {
		img.PersonaID = cfg.Persona.ID
	}

	if err := o.images.InsertGeneratedImage(ctx, img); err != nil {
		return domain.GeneratedImage{}, warnings, fmt.Errorf("record image: %w", err)
	}

	return img, warnings, nil
}

// planScene asks the planner for a background description and degrades to the
// configured location text when planning fails.
func (o *Orchestrator) planScene(ctx context.Context, batch domain.Batch, imageType domain.ImageType, product domain.ProductRef, warnings *[]string) string {
	brief := providers.SceneBrief{
		ProductName: product.Name,
		Audience:    batch.AudienceID,
		Brand:       batch.Config.Brand,
		Location:    batch.Config.SceneLocation,
		ImageType:   imageType,
	}
	if brief.ProductName == "" {
		brief.ProductName = product.ID
	}
	if batch.Config.Persona != nil && imageType != domain.ImageTypeProductOnly {
		brief.Persona = batch.Config.Persona.Description
	}

	if o.planner != nil {
		scene, err := o.planner.PlanScene(ctx, brief)
		if err == nil && scene != "" {
			return scene
		}
		if err != nil {
			o.logger.Printf("batch=%s scene planning degraded: %v", batch.ID, err)
			*warnings = append(*warnings, fmt.Sprintf("scene planning: %v", err))
		}
	}

	if batch.Config.SceneLocation != "" {
		return batch.Config.SceneLocation
	}
	return "a bright, minimal studio tabletop with soft window light"
}

func (o *Orchestrator) validate(ctx context.Context, imageB64, productB64 string, batch domain.Batch, imageType domain.ImageType, warnings *[]string) domain.ValidationSummary {
	if o.validator == nil {
		return domain.ValidationSummary{}
	}

	summary, err := o.validator.Validate(ctx, providers.ValidationInput{
		GeneratedB64: imageB64,
		ProductB64:   productB64,
		Brand:        batch.Config.Brand,
		ImageType:    imageType,
	})
	if err != nil {
		o.logger.Printf("batch=%s validation degraded: %v", batch.ID, err)
		*warnings = append(*warnings, fmt.Sprintf("validation: %v", err))
		return domain.ValidationSummary{}
	}
	if !summary.Passed {
		*warnings = append(*warnings, fmt.Sprintf("validation flagged %s image: %v", imageType, summary.Errors))
	}
	return summary
}

func statusFor(successes int) string {
	if successes == 0 {
		return domain.BatchStatusFailed
	}
	return domain.BatchStatusCompleted
}
