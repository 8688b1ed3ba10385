package webmonitor

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ocr"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/slot"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

var (
	colorConfirmed = color.RGBA{R: 0, G: 220, B: 90, A: 255}
	colorPending   = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	colorEmpty     = color.RGBA{R: 110, G: 110, B: 110, A: 255}
	colorMoney     = color.RGBA{R: 60, G: 140, B: 255, A: 255}
	colorLabelBG   = color.RGBA{R: 0, G: 0, B: 0, A: 200}
)

// renderOverlay draws the slot grid, each slot's state and the money region
// over the frame and encodes it as JPEG.
func renderOverlay(frame *types.Frame, inv, money *types.Rect, views [grid.SlotCount]slot.View, quality int) ([]byte, error) {
	b := frame.Bounds()
	img := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(img, img.Bounds(), frame.RGBA(), b.Min, draw.Src)

	if inv != nil {
		for _, s := range grid.Slots(*inv) {
			v := views[s.Index]
			c := colorEmpty
			switch v.State {
			case slot.StateConfirmed:
				c = colorConfirmed
			case slot.StatePending:
				c = colorPending
			}
			strokeRect(img, s.Cell, c, 1)
			if v.State == slot.StateConfirmed && len(v.Signature) >= 6 {
				drawLabel(img, s.Cell.X+2, s.Cell.Y+s.Cell.H-2, v.Signature[:6], c)
			}
		}
	}
	if money != nil {
		strokeRect(img, *money, colorMoney, 2)
		drawLabel(img, money.X, money.Y-2, "gain", colorMoney)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderTextCrop returns the binarized OCR input for one slot as PNG.
func renderTextCrop(frame *types.Frame, inv types.Rect, index int) ([]byte, bool, error) {
	crop := grid.Crop(frame, grid.Slots(inv)[index].Text)
	if crop == nil {
		return nil, false, nil
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, ocr.Preprocess(crop)); err != nil {
		return nil, true, err
	}
	return buf.Bytes(), true, nil
}

func strokeRect(img *image.RGBA, r types.Rect, c color.RGBA, width int) {
	b := img.Bounds()
	rect := r.Image().Intersect(b)
	if rect.Empty() {
		return
	}
	for i := range width {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			setIn(img, x, rect.Min.Y+i, c)
			setIn(img, x, rect.Max.Y-1-i, c)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			setIn(img, rect.Min.X+i, y, c)
			setIn(img, rect.Max.X-1-i, y, c)
		}
	}
}

func setIn(img *image.RGBA, x, y int, c color.RGBA) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

// drawLabel writes text with its baseline at (x, y) on a dark background.
func drawLabel(img *image.RGBA, x, y int, text string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	bg := image.Rect(x-1, y-face.Ascent-1, x+d.MeasureString(text).Ceil()+1, y+face.Descent)
	draw.Draw(img, bg.Intersect(img.Bounds()), image.NewUniform(colorLabelBG), image.Point{}, draw.Over)
	d.DrawString(text)
}
