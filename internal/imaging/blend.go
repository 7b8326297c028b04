package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"
)

func cloneNRGBA(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Src)
	return dst
}

// blendOverlayUniform blends a full-canvas solid color onto base using the
// overlay blend mode at the given opacity. The base alpha channel is left
// untouched.
func blendOverlayUniform(base *image.NRGBA, tint color.NRGBA, opacity float64) *image.NRGBA {
	if opacity <= 0 {
		return base
	}
	if opacity > 1 {
		opacity = 1
	}

	tr := float64(tint.R) / 255
	tg := float64(tint.G) / 255
	tb := float64(tint.B) / 255

	bounds := base.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := base.Pix[(y-bounds.Min.Y)*base.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (x - bounds.Min.X) * 4
			row[i+0] = mixChannel(row[i+0], overlayChannel(float64(row[i+0])/255, tr), opacity)
			row[i+1] = mixChannel(row[i+1], overlayChannel(float64(row[i+1])/255, tg), opacity)
			row[i+2] = mixChannel(row[i+2], overlayChannel(float64(row[i+2])/255, tb), opacity)
		}
	}
	return base
}

func overlayChannel(b, s float64) float64 {
	if b < 0.5 {
		return 2 * b * s
	}
	return 1 - 2*(1-b)*(1-s)
}

// blendSoftLight composites top over base using the soft-light blend mode.
// The effective weight of each top pixel is its own alpha scaled by opacity;
// the base alpha channel is preserved. Both images must share dimensions.
func blendSoftLight(base, top *image.NRGBA, opacity float64) *image.NRGBA {
	if opacity <= 0 {
		return base
	}
	if opacity > 1 {
		opacity = 1
	}

	bounds := base.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		baseRow := base.Pix[(y-bounds.Min.Y)*base.Stride:]
		topRow := top.Pix[(y-bounds.Min.Y)*top.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (x - bounds.Min.X) * 4
			weight := opacity * float64(topRow[i+3]) / 255
			if weight == 0 {
				continue
			}
			for c := 0; c < 3; c++ {
				b := float64(baseRow[i+c]) / 255
				s := float64(topRow[i+c]) / 255
				baseRow[i+c] = mixChannel(baseRow[i+c], softLightChannel(b, s), weight)
			}
		}
	}
	return base
}

// softLightChannel implements the W3C soft-light formula.
func softLightChannel(b, s float64) float64 {
	if s <= 0.5 {
		return b - (1-2*s)*b*(1-b)
	}
	var d float64
	if b <= 0.25 {
		d = ((16*b-12)*b + 4) * b
	} else {
		d = math.Sqrt(b)
	}
	return b + (2*s-1)*(d-b)
}

// saturate scales chroma around per-pixel luma without touching brightness
// or alpha.
func saturate(img *image.NRGBA, factor float64) *image.NRGBA {
	if factor == 1 {
		return img
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (x - bounds.Min.X) * 4
			r := float64(row[i+0])
			g := float64(row[i+1])
			b := float64(row[i+2])
			luma := 0.299*r + 0.587*g + 0.114*b
			row[i+0] = clampChannel(luma + (r-luma)*factor)
			row[i+1] = clampChannel(luma + (g-luma)*factor)
			row[i+2] = clampChannel(luma + (b-luma)*factor)
		}
	}
	return img
}

// scaleAlpha multiplies the alpha channel by factor in [0, 1].
func scaleAlpha(img *image.NRGBA, factor float64) *image.NRGBA {
	if factor >= 1 {
		return img
	}
	if factor < 0 {
		factor = 0
	}

	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		row := img.Pix[(y-bounds.Min.Y)*img.Stride:]
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := (x-bounds.Min.X)*4 + 3
			row[i] = uint8(math.Round(float64(row[i]) * factor))
		}
	}
	return img
}

func mixChannel(original uint8, blended, weight float64) uint8 {
	b := float64(original)/255 + (blended-float64(original)/255)*weight
	return clampChannel(b * 255)
}

func clampChannel(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}
