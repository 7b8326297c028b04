//go:build govips && cgo

package imaging

import (
	"bytes"
	"image"
	"image/draw"
	"image/png"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	startupOnce sync.Once
	shutdownMu  sync.Mutex
	started     bool
)

func Startup() error {
	startupOnce.Do(func() {
		vips.Startup(&vips.Config{
			MaxCacheFiles: 0,
			MaxCacheMem:   128 * 1024 * 1024,
			MaxCacheSize:  100,
		})

		shutdownMu.Lock()
		started = true
		shutdownMu.Unlock()
	})
	return nil
}

func Shutdown() {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

// gaussianBlur runs a true gaussian through libvips. Falls back to the input
// on any libvips failure so blur stays best-effort like the rest of the
// pipeline math.
func gaussianBlur(src *image.NRGBA, radius int) *image.NRGBA {
	if radius <= 0 {
		return src
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return src
	}

	img, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return src
	}
	defer img.Close()

	if err := img.GaussianBlur(float64(radius) / 2); err != nil {
		return src
	}

	data, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return src
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return src
	}

	if nrgba, ok := decoded.(*image.NRGBA); ok {
		return nrgba
	}
	bounds := decoded.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), decoded, bounds.Min, draw.Src)
	return out
}
