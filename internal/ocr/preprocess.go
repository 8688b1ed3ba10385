package ocr

import (
	"image"
	"image/color"

	"github.com/nfnt/resize"
)

const (
	upscale = 4
	// numerals render bright (yellow, white, green) on a dark slot
	inkThreshold = 140
)

// Preprocess upscales a text crop and binarises it to dark ink on white,
// which is what line OCR engines expect.
func Preprocess(img image.Image) *image.Gray {
	b := img.Bounds()
	scaled := resize.Resize(uint(b.Dx()*upscale), uint(b.Dy()*upscale), img, resize.Bicubic)

	sb := scaled.Bounds()
	out := image.NewGray(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	for y := sb.Min.Y; y < sb.Max.Y; y++ {
		for x := sb.Min.X; x < sb.Max.X; x++ {
			r, g, bl, _ := scaled.At(x, y).RGBA()
			v := color.Gray{Y: 255}
			if max(r, g, bl)>>8 >= inkThreshold {
				v.Y = 0
			}
			out.SetGray(x-sb.Min.X, y-sb.Min.Y, v)
		}
	}
	return out
}
