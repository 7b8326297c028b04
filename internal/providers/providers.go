package providers

import (
	"context"

	"github.com/adcanvas/adcanvas/internal/domain"
)

// The pipeline consumes narrow capability interfaces instead of one wide
// provider type. A concrete client implements whichever subset it supports;
// optional capabilities (subject enhancement) are probed with a type
// assertion at wiring time, never at call time.

// Isolator cuts a product out of its photo, returning a base64 image with an
// alpha channel where the source allows one.
type Isolator interface {
	IsolateProduct(ctx context.Context, imageURL string) (string, error)
}

// GenerateOptions tune a from-scratch generation.
type GenerateOptions struct {
	AspectRatio    string
	NegativePrompt string
}

// Generator produces images from text.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
	GenerateBackground(ctx context.Context, locationText string) (string, error)
}

// Refiner applies an instruction-guided image-to-image pass (relighting).
type Refiner interface {
	Refine(ctx context.Context, imageB64, instruction string) (string, error)
}

// Upscaler increases resolution by an integer factor.
type Upscaler interface {
	Upscale(ctx context.Context, imageB64 string, factor int) (string, error)
}

// SubjectEnhancer is the optional face/skin pass for persona and UGC shots.
type SubjectEnhancer interface {
	EnhanceSubject(ctx context.Context, imageB64, mode string) (string, error)
}

// SceneBrief is the context handed to scene planning.
type SceneBrief struct {
	ProductName string
	Audience    string
	Persona     string
	Brand       domain.BrandGuidelines
	Location    string
	ImageType   domain.ImageType
}

// ScenePlanner turns a brief into a background description for generation.
type ScenePlanner interface {
	PlanScene(ctx context.Context, brief SceneBrief) (string, error)
}

// ValidationInput is everything the quality validator may inspect.
type ValidationInput struct {
	GeneratedB64 string
	ProductB64   string
	Brand        domain.BrandGuidelines
	ImageType    domain.ImageType
}

// Validator runs heuristic quality checks on a composite before the
// enhancement pass is paid for.
type Validator interface {
	Validate(ctx context.Context, in ValidationInput) (domain.ValidationSummary, error)
}
