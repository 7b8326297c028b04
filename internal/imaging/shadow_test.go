package imaging

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestSynthesizeShadowShapeAndPlacement(t *testing.T) {
	source := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	for y := 10; y < 90; y++ {
		for x := 10; x < 90; x++ {
			source.SetNRGBA(x, y, color.NRGBA{R: 50, G: 50, B: 200, A: 255})
		}
	}
	product := cloneNRGBA(source)
	placement := Placement{X: 40, Y: 60}

	shadow, err := synthesizeShadow(source, product, placement, ShadowOptions{})
	if err != nil {
		t.Fatalf("synthesize shadow: %v", err)
	}

	if got := shadow.img.Bounds().Dx(); got != 100 {
		t.Fatalf("expected shadow width 100, got %d", got)
	}
	if got := shadow.img.Bounds().Dy(); got != 30 {
		t.Fatalf("expected shadow flattened to 30 percent height, got %d", got)
	}

	// Anchored near the product base: y + pH - round(pH * dropRatio).
	wantY := 60 + 100 - 15
	if shadow.placement.X != 40 || shadow.placement.Y != wantY {
		t.Fatalf("expected placement {40 %d}, got %+v", wantY, shadow.placement)
	}

	// The silhouette must be black with alpha carrying the shape.
	center := shadow.img.NRGBAAt(50, 15)
	if center.A == 0 {
		t.Fatal("expected shadow alpha at silhouette center")
	}
	if center.R != 0 || center.G != 0 || center.B != 0 {
		t.Fatalf("expected flat black shadow, got %+v", center)
	}
}

func TestSynthesizeShadowRejectsOpaqueSource(t *testing.T) {
	source := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for i := 3; i < len(source.Pix); i += 4 {
		source.Pix[i] = 255
	}
	product := cloneNRGBA(source)

	_, err := synthesizeShadow(source, product, Placement{}, ShadowOptions{})
	if !errors.Is(err, errNoAlphaChannel) {
		t.Fatalf("expected errNoAlphaChannel, got %v", err)
	}
}
