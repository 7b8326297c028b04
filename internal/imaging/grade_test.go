package imaging

import (
	"image"
	"image/color"
	"testing"
)

func TestApplyCinematicGradeChangesTone(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 20))
	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 80, G: 120, B: 160, A: 255})
		}
	}

	graded := ApplyCinematicGrade(img)

	before := img.NRGBAAt(10, 10)
	after := graded.NRGBAAt(10, 10)
	if before == after {
		t.Fatal("expected grade to alter pixel values")
	}
	if after.A != 255 {
		t.Fatalf("expected alpha preserved, got %d", after.A)
	}
}

func TestApplyCinematicGradePreservesAlpha(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(0, 0, color.NRGBA{R: 100, G: 100, B: 100, A: 97})
	img.SetNRGBA(1, 0, color.NRGBA{A: 0})

	graded := ApplyCinematicGrade(img)

	if got := graded.NRGBAAt(0, 0).A; got != 97 {
		t.Fatalf("expected alpha 97 preserved, got %d", got)
	}
	if got := graded.NRGBAAt(1, 0).A; got != 0 {
		t.Fatalf("expected transparent pixel to stay transparent, got alpha %d", got)
	}
}

func TestApplyCinematicGradeBoostsSaturation(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	muted := color.NRGBA{R: 140, G: 120, B: 100, A: 255}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetNRGBA(x, y, muted)
		}
	}

	graded := ApplyCinematicGrade(img)
	px := graded.NRGBAAt(0, 0)

	spreadBefore := int(muted.R) - int(muted.B)
	spreadAfter := int(px.R) - int(px.B)
	if spreadAfter <= spreadBefore {
		t.Fatalf("expected channel spread to widen, before=%d after=%d", spreadBefore, spreadAfter)
	}
}

func TestGaussianBlurSoftensEdges(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for y := 10; y < 30; y++ {
		for x := 10; x < 30; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, A: 255})
		}
	}

	blurred := gaussianBlur(img, 8)

	if blurred.Bounds() != img.Bounds() {
		t.Fatalf("blur changed dimensions: %v", blurred.Bounds())
	}

	// A pixel just outside the original square should have picked up energy.
	if blurred.NRGBAAt(8, 20).A == 0 {
		t.Fatal("expected blur to spread alpha beyond the original silhouette")
	}
	// The hard edge should no longer be a 0/255 step.
	edge := blurred.NRGBAAt(10, 20).A
	if edge == 0 || edge == 255 {
		t.Fatalf("expected softened edge alpha, got %d", edge)
	}
}

func TestBlendSoftLightLeavesBaseAlphaIntact(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	top := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	base.SetNRGBA(0, 0, color.NRGBA{R: 128, G: 128, B: 128, A: 200})
	top.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 255, B: 255, A: 255})

	out := blendSoftLight(base, top, 0.4)

	px := out.NRGBAAt(0, 0)
	if px.A != 200 {
		t.Fatalf("expected base alpha 200 preserved, got %d", px.A)
	}
	if px.R <= 128 {
		t.Fatalf("expected soft-light with white top to brighten midtone, got %d", px.R)
	}
}
