//go:build !govips || !cgo

package imaging

import "image"

func Startup() error { return nil }

func Shutdown() {}

// gaussianBlur approximates a gaussian of the given pixel radius with three
// separable box-blur passes. All four channels are blurred, so an alpha
// silhouette softens the same way its color does.
func gaussianBlur(src *image.NRGBA, radius int) *image.NRGBA {
	if radius <= 0 {
		return src
	}

	box := radius / 2
	if box < 1 {
		box = 1
	}

	out := cloneNRGBA(src)
	for pass := 0; pass < 3; pass++ {
		out = boxBlurHorizontal(out, box)
		out = boxBlurVertical(out, box)
	}
	return out
}

func boxBlurHorizontal(src *image.NRGBA, radius int) *image.NRGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	window := 2*radius + 1
	for y := 0; y < h; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+w*4]
		dstRow := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]

		var sum [4]int
		for x := -radius; x <= radius; x++ {
			i := clampIndex(x, w) * 4
			for c := 0; c < 4; c++ {
				sum[c] += int(srcRow[i+c])
			}
		}

		for x := 0; x < w; x++ {
			for c := 0; c < 4; c++ {
				dstRow[x*4+c] = uint8(sum[c] / window)
			}
			lead := clampIndex(x+radius+1, w) * 4
			trail := clampIndex(x-radius, w) * 4
			for c := 0; c < 4; c++ {
				sum[c] += int(srcRow[lead+c]) - int(srcRow[trail+c])
			}
		}
	}
	return dst
}

func boxBlurVertical(src *image.NRGBA, radius int) *image.NRGBA {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	window := 2*radius + 1
	for x := 0; x < w; x++ {
		var sum [4]int
		for y := -radius; y <= radius; y++ {
			i := clampIndex(y, h)*src.Stride + x*4
			for c := 0; c < 4; c++ {
				sum[c] += int(src.Pix[i+c])
			}
		}

		for y := 0; y < h; y++ {
			di := y*dst.Stride + x*4
			for c := 0; c < 4; c++ {
				dst.Pix[di+c] = uint8(sum[c] / window)
			}
			lead := clampIndex(y+radius+1, h)*src.Stride + x*4
			trail := clampIndex(y-radius, h)*src.Stride + x*4
			for c := 0; c < 4; c++ {
				sum[c] += int(src.Pix[lead+c]) - int(src.Pix[trail+c])
			}
		}
	}
	return dst
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
