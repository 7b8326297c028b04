package imaging

import (
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	DefaultProductSizePercent = 0.25

	VerticalCenter   = "center"
	VerticalBottom   = "bottom"
	VerticalTabletop = "tabletop"

	HorizontalCenter = "center"
	HorizontalLeft   = "left"
	HorizontalRight  = "right"

	// bottomMargin keeps bottom-aligned products off the frame edge.
	bottomMargin = 50
)

// Region is a normalized target rectangle in [0,1] of the background
// dimensions. Placement is center-anchored on the region's center.
type Region struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Placement is the top-left pixel offset of a foreground layer relative to
// the background origin.
type Placement struct {
	X int
	Y int
}

// ShadowOptions are hand-tuned shadow constants. They are configuration, not
// invariants; the defaults match the values that look right for tabletop
// product shots.
type ShadowOptions struct {
	HeightRatio float64
	BlurRadius  int
	DropRatio   float64
}

func (o ShadowOptions) withDefaults() ShadowOptions {
	if o.HeightRatio <= 0 || o.HeightRatio > 1 {
		o.HeightRatio = 0.30
	}
	if o.BlurRadius <= 0 {
		o.BlurRadius = 12
	}
	if o.DropRatio <= 0 || o.DropRatio > 1 {
		o.DropRatio = 0.15
	}
	return o
}

// CompositingOptions describes how to size and place a product over a
// background. Exactly one placement strategy wins per call, in strict
// precedence: TargetRegion > explicit X/Y > qualitative alignment > default
// center/tabletop.
type CompositingOptions struct {
	ProductSizePercent float64
	VerticalPosition   string
	HorizontalPosition string
	X                  *int
	Y                  *int
	TargetRegion       *Region
	DisableShadow      bool
	Shadow             ShadowOptions
}

func (o CompositingOptions) sizePercent() float64 {
	if o.ProductSizePercent <= 0 {
		return DefaultProductSizePercent
	}
	return o.ProductSizePercent
}

// resolvePlacement computes the product's top-left offset for the given
// background and resized-product dimensions.
func resolvePlacement(bgW, bgH, pW, pH int, opts CompositingOptions) Placement {
	if r := opts.TargetRegion; r != nil {
		centerX := (r.Left + r.Width/2) * float64(bgW)
		centerY := (r.Top + r.Height/2) * float64(bgH)
		return Placement{
			X: roundPx(centerX - float64(pW)/2),
			Y: roundPx(centerY - float64(pH)/2),
		}
	}

	var x int
	switch {
	case opts.X != nil:
		x = *opts.X
	case opts.HorizontalPosition == HorizontalLeft:
		x = roundPx(0.1 * float64(bgW))
	case opts.HorizontalPosition == HorizontalRight:
		x = roundPx(0.9*float64(bgW)) - pW
	default:
		x = (bgW - pW) / 2
	}

	var y int
	switch {
	case opts.Y != nil:
		y = *opts.Y
	case opts.VerticalPosition == VerticalCenter:
		y = (bgH - pH) / 2
	case opts.VerticalPosition == VerticalBottom:
		y = bgH - pH - bottomMargin
	default:
		// Tabletop: the product's visual base sits roughly three quarters
		// down the frame, as if resting on a surface in the lower third.
		y = roundPx(0.75*float64(bgH) - 0.9*float64(pH))
	}

	return Placement{X: x, Y: y}
}

// resizeToHeight scales to the target height preserving aspect ratio. The
// width is always derived, never forced, so the product cannot distort.
func resizeToHeight(src image.Image, targetH int) *image.NRGBA {
	if targetH < 1 {
		targetH = 1
	}

	bounds := src.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	targetW := roundPx(float64(srcW) * float64(targetH) / float64(srcH))
	if targetW < 1 {
		targetW = 1
	}

	return resizeTo(src, targetW, targetH)
}

// resizeToFill scales each axis independently to hit the exact target
// dimensions. Used where pixel alignment with a previously resolved
// placement matters more than aspect ratio.
func resizeToFill(src image.Image, targetW, targetH int) *image.NRGBA {
	if targetW < 1 {
		targetW = 1
	}
	if targetH < 1 {
		targetH = 1
	}
	return resizeTo(src, targetW, targetH)
}

func resizeTo(src image.Image, w, h int) *image.NRGBA {
	bounds := src.Bounds()
	if bounds.Dx() == w && bounds.Dy() == h {
		return cloneNRGBA(src)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
	return dst
}

func roundPx(v float64) int {
	return int(math.Round(v))
}
