// Package fingerprint computes 64-bit average hashes of inventory icons and
// decides whether two hashes show the same item.
package fingerprint

import (
	"errors"
	"fmt"
	"image"
	"math/bits"
	"strconv"

	"golang.org/x/image/draw"
)

// MatchThreshold is the largest Hamming distance still treated as the same
// item.
const MatchThreshold = 8

const (
	hashSide      = 8
	insetFraction = 0.20 // stack numerals bleed into the outer border
)

// ErrInvalidSignature is returned by Parse for malformed hex.
var ErrInvalidSignature = errors.New("invalid fingerprint")

// Fingerprint is an 8x8 average hash. Bit k (row-major) is stored at
// 1<<(63-k), so the hex form reads left to right like the grid.
type Fingerprint uint64

// String returns the 16-character lowercase hex form.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Short returns the first six hex characters.
func (f Fingerprint) Short() string {
	return f.String()[:6]
}

// Parse reads a hex fingerprint as produced by String.
func Parse(s string) (Fingerprint, error) {
	if len(s) == 0 || len(s) > 16 {
		return 0, fmt.Errorf("%w %q", ErrInvalidSignature, s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidSignature, s, err)
	}
	return Fingerprint(v), nil
}

// Distance returns the number of differing bits.
func Distance(a, b Fingerprint) int {
	return bits.OnesCount64(uint64(a ^ b))
}

// Matcher compares fingerprints with a fixed tolerance.
type Matcher struct {
	Threshold int
}

// SameItem reports whether a and b are within the matcher's tolerance.
func (m Matcher) SameItem(a, b Fingerprint) bool {
	return Distance(a, b) <= m.Threshold
}

// SameItem compares with the default MatchThreshold.
func SameItem(a, b Fingerprint) bool {
	return Distance(a, b) <= MatchThreshold
}

// Compute hashes the icon crop. The outer 20% on each side is dropped, the
// rest is scaled to 8x8 and each cell's luminance is compared against the
// grid mean. A nil or empty crop hashes to zero.
func Compute(crop *image.RGBA) Fingerprint {
	if crop == nil || crop.Bounds().Empty() {
		return 0
	}
	src := insetRect(crop.Bounds())

	small := image.NewRGBA(image.Rect(0, 0, hashSide, hashSide))
	draw.BiLinear.Scale(small, small.Bounds(), crop, src, draw.Src, nil)

	var lum [hashSide * hashSide]int
	sum := 0
	for k := range lum {
		i := small.PixOffset(k%hashSide, k/hashSide)
		p := small.Pix[i : i+3 : i+3]
		lum[k] = luminance(p[0], p[1], p[2])
		sum += lum[k]
	}

	// lum >= sum/64 without losing the remainder.
	var fp uint64
	for k, l := range lum {
		if l*len(lum) >= sum {
			fp |= 1 << (63 - k)
		}
	}
	return Fingerprint(fp)
}

func insetRect(r image.Rectangle) image.Rectangle {
	dx := int(float64(r.Dx()) * insetFraction)
	dy := int(float64(r.Dy()) * insetFraction)
	inner := image.Rect(r.Min.X+dx, r.Min.Y+dy, r.Max.X-dx, r.Max.Y-dy)
	if inner.Empty() {
		return r
	}
	return inner
}

// luminance is the integer Rec. 601 luma in [0,255].
func luminance(r, g, b uint8) int {
	return (299*int(r) + 587*int(g) + 114*int(b)) / 1000
}
