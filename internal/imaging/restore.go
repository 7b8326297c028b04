package imaging

import (
	"image"
	"image/draw"
)

// OverlayOnto fill-resizes the overlay to the base's exact dimensions and
// composites it on top, returning base64 PNG. Fill (not contain/cover) is
// required: the overlay's product placement must land on the same pixels it
// occupied before the base was upscaled.
func OverlayOnto(base, overlay image.Image) (string, error) {
	bb := base.Bounds()
	fitted := resizeToFill(overlay, bb.Dx(), bb.Dy())

	out := cloneNRGBA(base)
	draw.Draw(out, out.Bounds(), fitted, fitted.Bounds().Min, draw.Over)

	return EncodeBase64PNG(out)
}

// SoftLightOnto heavily blurs the light source image, fades it to the given
// opacity, and soft-light blends it over base. The blur is strong enough to
// destroy legible detail while keeping large-scale color and light
// gradients, so nothing hallucinated survives the trip back.
func SoftLightOnto(base, light image.Image, blurRadius int, opacity float64) (string, error) {
	blurred := gaussianBlur(cloneNRGBA(light), blurRadius)
	blurred = scaleAlpha(blurred, opacity)

	out := blendSoftLight(cloneNRGBA(base), blurred, 1.0)

	return EncodeBase64PNG(out)
}
