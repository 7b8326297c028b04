package imaging

import (
	"errors"
	"image"
)

var errNoAlphaChannel = errors.New("product image has no alpha channel")

// shadowLayer is a blurred silhouette plus its absolute placement on the
// background.
type shadowLayer struct {
	img       *image.NRGBA
	placement Placement
}

// synthesizeShadow derives a contact shadow from the resized product's alpha
// channel: a flat black silhouette, foreshortened to a fraction of the
// product height and heavily blurred. The shadow shares the product's left
// edge and is anchored just above its visual base.
func synthesizeShadow(source image.Image, product *image.NRGBA, productPlacement Placement, opts ShadowOptions) (*shadowLayer, error) {
	if opaque, ok := source.(interface{ Opaque() bool }); ok && opaque.Opaque() {
		return nil, errNoAlphaChannel
	}

	opts = opts.withDefaults()

	bounds := product.Bounds()
	pW, pH := bounds.Dx(), bounds.Dy()

	silhouette := image.NewNRGBA(image.Rect(0, 0, pW, pH))
	for y := 0; y < pH; y++ {
		srcRow := product.Pix[y*product.Stride:]
		dstRow := silhouette.Pix[y*silhouette.Stride:]
		for x := 0; x < pW; x++ {
			// RGB stays zero; only the alpha carries the product's shape.
			dstRow[x*4+3] = srcRow[x*4+3]
		}
	}

	flattened := resizeToFill(silhouette, pW, roundPx(float64(pH)*opts.HeightRatio))
	blurred := gaussianBlur(flattened, opts.BlurRadius)

	return &shadowLayer{
		img: blurred,
		placement: Placement{
			X: productPlacement.X,
			Y: productPlacement.Y + pH - roundPx(float64(pH)*opts.DropRatio),
		},
	}, nil
}
