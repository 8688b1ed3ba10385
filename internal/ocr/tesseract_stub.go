//go:build !tesseract

package ocr

import "image"

// Tesseract is unavailable without the tesseract build tag.
type Tesseract struct{}

// NewTesseract reports ErrEngineUnavailable. Build with -tags tesseract
// to enable it.
func NewTesseract(string) (*Tesseract, error) {
	return nil, ErrEngineUnavailable
}

func (*Tesseract) Text(image.Image) (string, error) { return "", ErrEngineUnavailable }
func (*Tesseract) Close() error                     { return nil }
