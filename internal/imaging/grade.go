package imaging

import (
	"image"
	"image/color"
)

const (
	gradeTintOpacity     = 0.10
	gradeSaturationBoost = 1.15
)

// warm low-opacity tint that pulls AI background and real product pixels
// toward a single photographic temperature.
var gradeTint = color.NRGBA{R: 255, G: 240, B: 220, A: 255}

// ApplyCinematicGrade runs the unifying tonal pass: a warm overlay-blended
// tint across the whole canvas followed by a global saturation boost.
// Purely cosmetic; callers treat any failure around it as skippable.
func ApplyCinematicGrade(img image.Image) *image.NRGBA {
	out := cloneNRGBA(img)
	out = blendOverlayUniform(out, gradeTint, gradeTintOpacity)
	return saturate(out, gradeSaturationBoost)
}

// ApplyCinematicGradeBase64 is the codec-bracketed form used between
// pipeline stages that pass base64 PNGs.
func ApplyCinematicGradeBase64(imageB64 string) (string, error) {
	img, err := DecodeBase64Image("composite image", imageB64)
	if err != nil {
		return "", err
	}
	return EncodeBase64PNG(ApplyCinematicGrade(img))
}
