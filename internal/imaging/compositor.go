package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"log"
)

// Result pairs the visible composite with its clean overlay. The overlay is
// the product alone on a transparent canvas of the background's dimensions,
// kept as ground truth for fidelity restoration after AI enhancement. Both
// are base64-encoded PNGs.
type Result struct {
	Image   string `json:"image"`
	Overlay string `json:"overlay"`
}

type Compositor struct {
	logger *log.Logger
}

func NewCompositor(logger *log.Logger) *Compositor {
	return &Compositor{logger: logger}
}

// CompositeProduct places the product over the background per opts, adds a
// best-effort contact shadow, and returns the composite plus the clean
// overlay. The product placement is resolved once and reused verbatim for
// both outputs so they depict the product at identical coordinates.
func (c *Compositor) CompositeProduct(backgroundB64, productB64 string, opts CompositingOptions) (Result, error) {
	background, err := DecodeBase64Image("background image", backgroundB64)
	if err != nil {
		return Result{}, err
	}
	productSrc, err := DecodeBase64Image("product image", productB64)
	if err != nil {
		return Result{}, err
	}

	bgBounds := background.Bounds()
	bgW, bgH := bgBounds.Dx(), bgBounds.Dy()

	targetH := roundPx(float64(bgH) * opts.sizePercent())
	if targetH < 1 {
		targetH = 1
	}
	product := resizeToHeight(productSrc, targetH)
	pBounds := product.Bounds()
	pW, pH := pBounds.Dx(), pBounds.Dy()

	placement := resolvePlacement(bgW, bgH, pW, pH, opts)

	var shadow *shadowLayer
	if !opts.DisableShadow {
		shadow, err = synthesizeShadow(productSrc, product, placement, opts.Shadow)
		if err != nil {
			c.logger.Printf("shadow synthesis skipped: %v", err)
			shadow = nil
		}
	}

	composite := cloneNRGBA(background)
	if shadow != nil {
		drawLayer(composite, shadow.img, shadow.placement)
	}
	drawLayer(composite, product, placement)

	overlay := image.NewNRGBA(image.Rect(0, 0, bgW, bgH))
	drawLayer(overlay, product, placement)

	imageB64, err := EncodeBase64PNG(composite)
	if err != nil {
		return Result{}, fmt.Errorf("encode composite: %w", err)
	}
	overlayB64, err := EncodeBase64PNG(overlay)
	if err != nil {
		return Result{}, fmt.Errorf("encode overlay: %w", err)
	}

	return Result{Image: imageB64, Overlay: overlayB64}, nil
}

func drawLayer(dst *image.NRGBA, layer *image.NRGBA, placement Placement) {
	offset := image.Point{X: placement.X, Y: placement.Y}
	draw.Draw(dst, layer.Bounds().Add(offset), layer, layer.Bounds().Min, draw.Over)
}
