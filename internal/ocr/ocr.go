// Package ocr reads stack sizes and gain values from small text crops.
// Recognition is best effort: every reader reports "unknown" rather than
// guessing.
package ocr

import (
	"errors"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
)

// ErrEngineUnavailable is returned when the requested engine is not
// compiled in.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

var log = logger.For("OCR")

// Reader extracts a positive integer from a text crop.
type Reader interface {
	Read(img *image.RGBA) (int, bool)
}

// Func adapts a function to Reader.
type Func func(img *image.RGBA) (int, bool)

// Read calls f.
func (f Func) Read(img *image.RGBA) (int, bool) { return f(img) }

// Nop never recognises anything.
type Nop struct{}

// Read always reports unknown.
func (Nop) Read(*image.RGBA) (int, bool) { return 0, false }

// TextEngine turns a prepared image into raw text.
type TextEngine interface {
	Text(img image.Image) (string, error)
	Close() error
}

// Open returns the named engine. "none" and "" return a nil engine.
func Open(engine, language string) (TextEngine, error) {
	switch engine {
	case "", "none":
		return nil, nil
	case "tesseract":
		t, err := NewTesseract(language)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown ocr engine %q", engine)
	}
}

type engineReader struct {
	engine TextEngine
	parse  func(string) (int, bool)
	name   string
}

func (r engineReader) Read(img *image.RGBA) (int, bool) {
	if img == nil || img.Bounds().Empty() {
		return 0, false
	}
	text, err := r.engine.Text(Preprocess(img))
	if err != nil {
		log.Debug("%s read failed: %v", r.name, err)
		return 0, false
	}
	return r.parse(text)
}

// NewQuantityReader reads stack sizes through engine.
func NewQuantityReader(engine TextEngine) Reader {
	return engineReader{engine: engine, parse: ParseQuantity, name: "quantity"}
}

// NewGainReader reads "+N" gain overlays through engine.
func NewGainReader(engine TextEngine) Reader {
	return engineReader{engine: engine, parse: ParseGain, name: "gain"}
}

// ParseQuantity parses a stack label. Grouping separators (",", ".", " ")
// are dropped; a trailing K or M multiplies by a thousand or a million,
// in which case "." is a decimal point. Anything else, or a result that
// is not positive, is unknown.
func ParseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	mult := 1
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1_000
	case 'm', 'M':
		mult = 1_000_000
	}
	if mult > 1 {
		s = strings.TrimSpace(s[:len(s)-1])
		return parseScaled(s, mult)
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ',' || r == '.' || r == ' ':
		default:
			return 0, false
		}
	}
	return positive(b.String())
}

func parseScaled(s string, mult int) (int, bool) {
	s = strings.NewReplacer(",", "", " ", "").Replace(s)
	if s == "" || strings.Count(s, ".") > 1 {
		return 0, false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	n := f * float64(mult)
	if n < 1 || n >= math.MaxInt {
		return 0, false
	}
	return int(n), true
}

func positive(digits string) (int, bool) {
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ParseGain parses a "+N" overlay. The leading plus is optional.
func ParseGain(s string) (int, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "+")
	return ParseQuantity(s)
}
