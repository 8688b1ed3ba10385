package types

import (
	"image"
	"image/draw"
	"time"
)

// Rect is an integer pixel rectangle in capture coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Valid reports whether the rectangle has a positive area.
func (r Rect) Valid() bool {
	return r.W > 0 && r.H > 0
}

// Image converts the rectangle to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// RectFromImage converts an image.Rectangle back to a Rect.
func RectFromImage(r image.Rectangle) Rect {
	return Rect{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Frame is one captured RGBA raster of the game client.
type Frame struct {
	Width     int       // Raster width in pixels
	Height    int       // Raster height in pixels
	Pix       []byte    // Row-major RGBA, stride = 4*Width
	Timestamp time.Time // Capture timestamp
	FrameNum  uint64    // Sequential capture number
}

// NewFrame allocates a zeroed frame of the given size.
func NewFrame(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]byte, 4*width*height),
	}
}

// FrameFromImage copies any image into a new frame anchored at (0,0).
func FrameFromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	if rgba, ok := img.(*image.RGBA); ok && rgba.Stride == 4*b.Dx() {
		copy(f.Pix, rgba.Pix[rgba.PixOffset(b.Min.X, b.Min.Y):])
		return f
	}
	draw.Draw(f.RGBA(), f.RGBA().Bounds(), img, b.Min, draw.Src)
	return f
}

// RGBA returns an *image.RGBA sharing the frame's pixel buffer.
func (f *Frame) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: 4 * f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Bounds returns the frame rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}
