package enhance

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/adcanvas/adcanvas/internal/domain"
	"github.com/adcanvas/adcanvas/internal/imaging"
)

// relightInstruction is deliberately narrow: the model may only correct
// lighting, never composition. Relight models resynthesize fine detail, so
// anything they touch beyond light direction is damage the fidelity sandwich
// has to undo.
const relightInstruction = "Adjust only the lighting and shadow direction and intensity of the " +
	"foreground product so it matches the surrounding scene. Do not change the composition, " +
	"the objects, the layout, or any text or logos. Return the full image."

const (
	reinjectBlurRadius = 20
	reinjectOpacity    = 0.40
)

// Refiner applies an instruction-guided image-to-image pass.
type Refiner interface {
	Refine(ctx context.Context, imageB64, instruction string) (string, error)
}

// Upscaler increases resolution by an integer factor.
type Upscaler interface {
	Upscale(ctx context.Context, imageB64 string, factor int) (string, error)
}

// SubjectEnhancer is an optional capability for face/skin-targeted passes on
// persona and UGC imagery. Providers that support it implement this narrower
// interface; callers probe for it with a type assertion.
type SubjectEnhancer interface {
	EnhanceSubject(ctx context.Context, imageB64, mode string) (string, error)
}

// Input describes one enhancement run.
type Input struct {
	ImageB64    string
	OverlayB64  string // clean product overlay; empty disables the sandwich
	ImageType   domain.ImageType
	ScaleFactor int
}

// Output carries the best image the stage sequence produced plus warnings
// for every stage that had to degrade to a no-op.
type Output struct {
	ImageB64 string
	Warnings []string
}

// Enhancer runs the realism-restoration sequence: AI relight, AI upscale,
// fidelity-sandwich pixel restoration, lighting re-injection, and an
// optional subject pass. Every stage is independently failable; a failed
// stage logs, records a warning, and the pipeline continues with the best
// image produced so far. Enhance never returns an error for stage failures.
type Enhancer struct {
	logger   *log.Logger
	refiner  Refiner
	upscaler Upscaler
	subject  SubjectEnhancer
}

func New(logger *log.Logger, refiner Refiner, upscaler Upscaler, subject SubjectEnhancer) *Enhancer {
	return &Enhancer{
		logger:   logger,
		refiner:  refiner,
		upscaler: upscaler,
		subject:  subject,
	}
}

func (e *Enhancer) Enhance(ctx context.Context, in Input) Output {
	out := Output{ImageB64: in.ImageB64}

	run := func(stage string, fn func(current string) (string, error)) {
		next, err := fn(out.ImageB64)
		if err != nil {
			e.logger.Printf("enhance stage %s degraded: %v", stage, err)
			out.Warnings = append(out.Warnings, fmt.Sprintf("%s: %v", stage, err))
			return
		}
		out.ImageB64 = next
	}

	run("relight", func(current string) (string, error) {
		if e.refiner == nil {
			return "", errors.New("no refiner configured")
		}
		return e.refiner.Refine(ctx, current, relightInstruction)
	})

	run("upscale", func(current string) (string, error) {
		if e.upscaler == nil {
			return "", errors.New("no upscaler configured")
		}
		factor := in.ScaleFactor
		if factor <= 1 {
			factor = 2
		}
		return e.upscaler.Upscale(ctx, current, factor)
	})

	// preSandwich is the most-enhanced image before ground-truth pixels are
	// restored; its large-scale light gradients feed the re-injection pass.
	preSandwich := out.ImageB64

	if in.OverlayB64 != "" {
		sandwiched := false
		run("fidelity_sandwich", func(current string) (string, error) {
			next, err := RestoreOverlay(current, in.OverlayB64)
			if err != nil {
				return "", err
			}
			sandwiched = true
			return next, nil
		})

		// Re-injection corrects the sandwiched result. When the sandwich
		// degraded, the current image already carries its own lighting.
		if sandwiched {
			run("light_reinjection", func(current string) (string, error) {
				return ReinjectLighting(current, preSandwich)
			})
		}
	}

	if in.ImageType != domain.ImageTypeProductOnly {
		run("subject_enhancement", func(current string) (string, error) {
			if e.subject == nil {
				return "", errors.New("provider has no subject enhancement capability")
			}
			return e.subject.EnhanceSubject(ctx, current, "skin")
		})
	}

	return out
}

// RestoreOverlay composites the clean product overlay on top of an enhanced
// image, restoring the original product pixels (labels, logos, text) that
// generative passes tend to hallucinate. The overlay is fill-resized to the
// enhanced image's exact dimensions so the placement baked into it survives
// uniform upscaling; a changed aspect ratio means the placement no longer
// holds, and the stage fails loudly instead of misplacing the product.
func RestoreOverlay(enhancedB64, overlayB64 string) (string, error) {
	enhanced, err := imaging.DecodeBase64Image("enhanced image", enhancedB64)
	if err != nil {
		return "", err
	}
	overlay, err := imaging.DecodeBase64Image("overlay image", overlayB64)
	if err != nil {
		return "", err
	}

	eb, ob := enhanced.Bounds(), overlay.Bounds()
	if !sameAspect(ob.Dx(), ob.Dy(), eb.Dx(), eb.Dy()) {
		return "", fmt.Errorf("overlay aspect %dx%d does not match enhanced %dx%d",
			ob.Dx(), ob.Dy(), eb.Dx(), eb.Dy())
	}

	return imaging.OverlayOnto(enhanced, overlay)
}

// ReinjectLighting blurs the pre-sandwich enhanced image into pure color and
// light gradients, then soft-light blends it over the sandwiched result.
// This hands back the ambient cues the relight pass produced without handing
// back its hallucinated detail.
func ReinjectLighting(sandwichedB64, preSandwichB64 string) (string, error) {
	base, err := imaging.DecodeBase64Image("sandwiched image", sandwichedB64)
	if err != nil {
		return "", err
	}
	light, err := imaging.DecodeBase64Image("pre-sandwich image", preSandwichB64)
	if err != nil {
		return "", err
	}

	bb, lb := base.Bounds(), light.Bounds()
	if bb.Dx() != lb.Dx() || bb.Dy() != lb.Dy() {
		return "", fmt.Errorf("light layer %dx%d does not match base %dx%d",
			lb.Dx(), lb.Dy(), bb.Dx(), bb.Dy())
	}

	return imaging.SoftLightOnto(base, light, reinjectBlurRadius, reinjectOpacity)
}

// sameAspect allows a one-pixel rounding slack on the cross-multiplied
// ratios.
func sameAspect(w1, h1, w2, h2 int) bool {
	lhs := int64(w1) * int64(h2)
	rhs := int64(w2) * int64(h1)
	diff := lhs - rhs
	if diff < 0 {
		diff = -diff
	}
	slack := int64(max(h1, h2)) * int64(max(w1, w2)) / 100
	if slack < 1 {
		slack = 1
	}
	return diff <= slack
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
