package imaging

import (
	"image"
	"image/color"
	"io"
	"log"
	"strings"
	"testing"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// buildBackgroundB64 returns a uniform-color opaque background.
func buildBackgroundB64(t *testing.T, w, h int, c color.NRGBA) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = 255
	}

	encoded, err := EncodeBase64PNG(img)
	if err != nil {
		t.Fatalf("encode background: %v", err)
	}
	return encoded
}

// buildCutoutB64 returns a product-like cutout: a solid color core with a
// transparent border, so the buffer genuinely carries alpha.
func buildCutoutB64(t *testing.T, w, h, border int, c color.NRGBA) string {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
		}
	}

	encoded, err := EncodeBase64PNG(img)
	if err != nil {
		t.Fatalf("encode cutout: %v", err)
	}
	return encoded
}

// buildOpaqueB64 returns a fully opaque product, which defeats shadow
// synthesis on purpose.
func buildOpaqueB64(t *testing.T, w, h int, c color.NRGBA) string {
	t.Helper()
	return buildCutoutB64(t, w, h, 0, c)
}

func decodeB64(t *testing.T, name, encoded string) *image.NRGBA {
	t.Helper()

	img, err := DecodeBase64Image(name, encoded)
	if err != nil {
		t.Fatalf("decode %s: %v", name, err)
	}
	return cloneNRGBA(img)
}

func opaqueBounds(img *image.NRGBA) (image.Rectangle, bool) {
	found := false
	box := image.Rectangle{}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.NRGBAAt(x, y).A == 0 {
				continue
			}
			pt := image.Rect(x, y, x+1, y+1)
			if !found {
				box = pt
				found = true
			} else {
				box = box.Union(pt)
			}
		}
	}
	return box, found
}

func differsFromBounds(img *image.NRGBA, bg color.NRGBA) (image.Rectangle, bool) {
	found := false
	box := image.Rectangle{}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			px := img.NRGBAAt(x, y)
			if px.R == bg.R && px.G == bg.G && px.B == bg.B {
				continue
			}
			pt := image.Rect(x, y, x+1, y+1)
			if !found {
				box = pt
				found = true
			} else {
				box = box.Union(pt)
			}
		}
	}
	return box, found
}

func TestCompositeProductDimensionInvariant(t *testing.T) {
	const bgW, bgH = 320, 240
	bg := buildBackgroundB64(t, bgW, bgH, color.NRGBA{R: 40, G: 80, B: 200})
	product := buildCutoutB64(t, 100, 100, 10, color.NRGBA{R: 220, G: 30, B: 30})

	c := NewCompositor(testLogger())
	result, err := c.CompositeProduct(bg, product, CompositingOptions{})
	if err != nil {
		t.Fatalf("composite: %v", err)
	}

	composite := decodeB64(t, "composite", result.Image)
	overlay := decodeB64(t, "overlay", result.Overlay)

	if composite.Bounds() != overlay.Bounds() {
		t.Fatalf("composite %v and overlay %v dimensions differ", composite.Bounds(), overlay.Bounds())
	}
	if composite.Bounds().Dx() != bgW || composite.Bounds().Dy() != bgH {
		t.Fatalf("expected %dx%d output, got %v", bgW, bgH, composite.Bounds())
	}
}

func TestCompositeProductPlacementConsistency(t *testing.T) {
	const bgW, bgH = 400, 300
	bgColor := color.NRGBA{R: 10, G: 10, B: 10}
	bg := buildBackgroundB64(t, bgW, bgH, bgColor)
	product := buildOpaqueB64(t, 80, 80, color.NRGBA{R: 250, G: 20, B: 20})

	strategies := map[string]CompositingOptions{
		"default tabletop": {},
		"target region":    {TargetRegion: &Region{Top: 0.1, Left: 0.1, Width: 0.4, Height: 0.4}},
		"explicit xy":      {X: intPtr(30), Y: intPtr(40)},
		"qualitative":      {HorizontalPosition: HorizontalRight, VerticalPosition: VerticalBottom},
	}

	c := NewCompositor(testLogger())
	for name, opts := range strategies {
		t.Run(name, func(t *testing.T) {
			// Opaque product: shadow synthesis degrades to none, which keeps
			// the composite's differing pixels identical to the product box.
			result, err := c.CompositeProduct(bg, product, opts)
			if err != nil {
				t.Fatalf("composite: %v", err)
			}

			overlay := decodeB64(t, "overlay", result.Overlay)
			composite := decodeB64(t, "composite", result.Image)

			overlayBox, ok := opaqueBounds(overlay)
			if !ok {
				t.Fatal("overlay contains no product pixels")
			}
			compositeBox, ok := differsFromBounds(composite, bgColor)
			if !ok {
				t.Fatal("composite contains no product pixels")
			}

			if overlayBox != compositeBox {
				t.Fatalf("product box differs: overlay=%v composite=%v", overlayBox, compositeBox)
			}
		})
	}
}

func TestCompositeProductProportionalSizing(t *testing.T) {
	const bgH = 300
	bg := buildBackgroundB64(t, 400, bgH, color.NRGBA{R: 5, G: 5, B: 5})
	product := buildOpaqueB64(t, 120, 120, color.NRGBA{R: 200, G: 200, B: 40})

	c := NewCompositor(testLogger())
	for _, pct := range []float64{0.1, 0.25, 0.5} {
		result, err := c.CompositeProduct(bg, product, CompositingOptions{ProductSizePercent: pct})
		if err != nil {
			t.Fatalf("composite at %v: %v", pct, err)
		}

		overlay := decodeB64(t, "overlay", result.Overlay)
		box, ok := opaqueBounds(overlay)
		if !ok {
			t.Fatalf("no product pixels at %v", pct)
		}

		want := roundPx(float64(bgH) * pct)
		if got := box.Dy(); got < want-1 || got > want+1 {
			t.Fatalf("size percent %v: expected product height %d±1, got %d", pct, want, got)
		}
	}
}

func TestCompositeProductShadowDegradesGracefully(t *testing.T) {
	bg := buildBackgroundB64(t, 200, 200, color.NRGBA{R: 255, G: 255, B: 255})
	opaqueProduct := buildOpaqueB64(t, 50, 50, color.NRGBA{R: 0, G: 120, B: 255})

	c := NewCompositor(testLogger())
	result, err := c.CompositeProduct(bg, opaqueProduct, CompositingOptions{})
	if err != nil {
		t.Fatalf("expected graceful degradation, got %v", err)
	}
	if result.Image == "" || result.Overlay == "" {
		t.Fatal("expected both composite and overlay despite shadow failure")
	}
}

func TestCompositeProductRendersContactShadow(t *testing.T) {
	const bgW, bgH = 400, 400
	bg := buildBackgroundB64(t, bgW, bgH, color.NRGBA{R: 255, G: 255, B: 255})
	product := buildCutoutB64(t, 160, 160, 8, color.NRGBA{R: 180, G: 40, B: 40})

	c := NewCompositor(testLogger())
	result, err := c.CompositeProduct(bg, product, CompositingOptions{ProductSizePercent: 0.5})
	if err != nil {
		t.Fatalf("composite: %v", err)
	}

	composite := decodeB64(t, "composite", result.Image)
	overlay := decodeB64(t, "overlay", result.Overlay)

	box, ok := opaqueBounds(overlay)
	if !ok {
		t.Fatal("no product pixels in overlay")
	}

	// Just below the product base the blurred silhouette should darken the
	// white background.
	sampleX := (box.Min.X + box.Max.X) / 2
	sampleY := box.Max.Y + 5
	px := composite.NRGBAAt(sampleX, sampleY)
	if px.R >= 250 && px.G >= 250 && px.B >= 250 {
		t.Fatalf("expected shadow below product base, got background-white pixel %+v at (%d,%d)", px, sampleX, sampleY)
	}
}

func TestCompositeProductDataURITolerance(t *testing.T) {
	bg := buildBackgroundB64(t, 64, 64, color.NRGBA{R: 30, G: 30, B: 60})
	product := buildCutoutB64(t, 16, 16, 2, color.NRGBA{R: 240, G: 10, B: 10})

	c := NewCompositor(testLogger())
	plain, err := c.CompositeProduct(bg, product, CompositingOptions{})
	if err != nil {
		t.Fatalf("composite raw base64: %v", err)
	}

	prefixed, err := c.CompositeProduct(
		"data:image/png;base64,"+bg,
		"data:image/png;base64,"+product,
		CompositingOptions{},
	)
	if err != nil {
		t.Fatalf("composite data-uri: %v", err)
	}

	if plain.Image != prefixed.Image || plain.Overlay != prefixed.Overlay {
		t.Fatal("expected identical output for raw and data-URI inputs")
	}
}

func TestCompositeProductRejectsMarkupInputs(t *testing.T) {
	htmlB64 := "PGh0bWw+PGJvZHk+NTAyIEJhZCBHYXRld2F5PC9ib2R5PjwvaHRtbD4=" // <html>...
	goodBg := buildBackgroundB64(t, 32, 32, color.NRGBA{})
	goodProduct := buildCutoutB64(t, 8, 8, 1, color.NRGBA{R: 255})

	c := NewCompositor(testLogger())

	_, err := c.CompositeProduct(htmlB64, goodProduct, CompositingOptions{})
	if err == nil || !strings.Contains(err.Error(), "background image") {
		t.Fatalf("expected background markup error, got %v", err)
	}

	_, err = c.CompositeProduct(goodBg, htmlB64, CompositingOptions{})
	if err == nil || !strings.Contains(err.Error(), "product image") {
		t.Fatalf("expected product markup error, got %v", err)
	}
}
