// Package grid slices the calibrated inventory region into its 4x7 slot
// layout and crops per-slot sample areas out of a captured frame.
package grid

import (
	"image"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

const (
	Columns   = 4
	Rows      = 7
	SlotCount = Columns * Rows
)

// Icon and text crop proportions relative to the cell.
const (
	iconTopFraction  = 0.22 // numeral band above the icon sample
	iconSideInset    = 2
	iconBottomInset  = 2
	textWidthFactor  = 0.72
	textHeightFactor = 0.40
)

// Slot holds the rectangles derived for one grid cell.
type Slot struct {
	Index int
	Cell  types.Rect
	Icon  types.Rect
	Text  types.Rect
}

// CellSize returns the per-cell width and height for region.
func CellSize(region types.Rect) (int, int) {
	return region.W / Columns, region.H / Rows
}

// Cell returns the rectangle of slot i (row-major, 0-indexed).
func Cell(region types.Rect, i int) types.Rect {
	w, h := CellSize(region)
	return types.Rect{
		X: region.X + (i%Columns)*w,
		Y: region.Y + (i/Columns)*h,
		W: w,
		H: h,
	}
}

// IconRect returns the icon sampling area of a cell: inset from the grid
// lines and below the stack-count band.
func IconRect(cell types.Rect) types.Rect {
	padTop := int(float64(cell.H) * iconTopFraction)
	return types.Rect{
		X: cell.X + iconSideInset,
		Y: cell.Y + padTop,
		W: max(cell.W-2*iconSideInset, 1),
		H: max(cell.H-padTop-iconBottomInset, 1),
	}
}

// TextRect returns the upper-left area where stack numerals render.
func TextRect(cell types.Rect) types.Rect {
	return types.Rect{
		X: cell.X + 1,
		Y: cell.Y + 1,
		W: max(int(float64(cell.W)*textWidthFactor), 1),
		H: max(int(float64(cell.H)*textHeightFactor), 1),
	}
}

// Slots derives every slot layout for region.
func Slots(region types.Rect) [SlotCount]Slot {
	var out [SlotCount]Slot
	for i := range SlotCount {
		cell := Cell(region, i)
		out[i] = Slot{
			Index: i,
			Cell:  cell,
			Icon:  IconRect(cell),
			Text:  TextRect(cell),
		}
	}
	return out
}

// Clamp intersects r with a width x height raster anchored at the origin.
func Clamp(r types.Rect, width, height int) (image.Rectangle, bool) {
	clipped := r.Image().Intersect(image.Rect(0, 0, width, height))
	if clipped.Empty() {
		return image.Rectangle{}, false
	}
	return clipped, true
}

// Crop returns the part of the frame covered by r, clamped to the frame
// edges. The result shares the frame's pixels. It returns nil when r lies
// entirely outside the frame.
func Crop(f *types.Frame, r types.Rect) *image.RGBA {
	if f == nil {
		return nil
	}
	clipped, ok := Clamp(r, f.Width, f.Height)
	if !ok {
		return nil
	}
	return f.RGBA().SubImage(clipped).(*image.RGBA)
}
