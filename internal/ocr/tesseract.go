//go:build tesseract

package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

const whitelist = "0123456789,.KMkm+"

// Tesseract wraps a gosseract client. The client is not safe for
// concurrent use, so calls are serialised.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract configures a single-line numeric client.
func NewTesseract(language string) (*Tesseract, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			client.Close()
			return nil, fmt.Errorf("set language: %w", err)
		}
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		client.Close()
		return nil, fmt.Errorf("set page segmentation: %w", err)
	}
	log.Info("tesseract %s ready", gosseract.Version())
	return &Tesseract{client: client}, nil
}

// Text recognises one line of text.
func (t *Tesseract) Text(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	return t.client.Text()
}

// Close releases the client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client.Close()
}
