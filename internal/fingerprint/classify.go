package fingerprint

import "image"

// Class is the content classification of a slot crop.
type Class int

const (
	Empty Class = iota
	Occluded
	Content
)

func (c Class) String() string {
	switch c {
	case Empty:
		return "empty"
	case Occluded:
		return "occluded"
	case Content:
		return "content"
	default:
		return "unknown"
	}
}

// Thresholds tunes Classify.
type Thresholds struct {
	GridSide      int     // samples per axis
	NearBlack     int     // luminance below this is near-black
	NearWhite     int     // luminance above this is near-white
	OccludedBlack float64 // minimum near-black ratio for a tooltip
	OccludedWhite float64 // minimum near-white ratio for a tooltip
	EmptyVariance float64
	EmptySpread   float64
}

// DefaultThresholds are tuned for the default interface skin.
func DefaultThresholds() Thresholds {
	return Thresholds{
		GridSide:      10,
		NearBlack:     40,
		NearWhite:     215,
		OccludedBlack: 0.45,
		OccludedWhite: 0.04,
		EmptyVariance: 80,
		EmptySpread:   14,
	}
}

// Stats summarizes a sample grid.
type Stats struct {
	Samples    int
	Mean       float64
	Variance   float64
	Spread     float64 // mean of per-sample max-min channel
	BlackRatio float64
	WhiteRatio float64
}

// Sample measures the crop on a coarse grid of sample centres.
func (t Thresholds) Sample(crop *image.RGBA) Stats {
	if crop == nil || crop.Bounds().Empty() {
		return Stats{}
	}
	b := crop.Bounds()
	n := max(t.GridSide, 1)

	var (
		st           Stats
		sum, sumSq   float64
		spread       float64
		black, white int
	)
	for gy := range n {
		y := b.Min.Y + (2*gy+1)*b.Dy()/(2*n)
		for gx := range n {
			x := b.Min.X + (2*gx+1)*b.Dx()/(2*n)
			i := crop.PixOffset(x, y)
			r, g, bl := crop.Pix[i], crop.Pix[i+1], crop.Pix[i+2]

			l := luminance(r, g, bl)
			sum += float64(l)
			sumSq += float64(l * l)
			spread += float64(max(r, g, bl) - min(r, g, bl))
			if l < t.NearBlack {
				black++
			}
			if l > t.NearWhite {
				white++
			}
			st.Samples++
		}
	}

	count := float64(st.Samples)
	st.Mean = sum / count
	st.Variance = sumSq/count - st.Mean*st.Mean
	st.Spread = spread / count
	st.BlackRatio = float64(black) / count
	st.WhiteRatio = float64(white) / count
	return st
}

// Classify decides whether the crop is empty background, covered by a
// tooltip, or shows an item. Tooltip detection runs first.
func (t Thresholds) Classify(crop *image.RGBA) Class {
	st := t.Sample(crop)
	if st.Samples == 0 {
		return Empty
	}
	if st.BlackRatio >= t.OccludedBlack && st.WhiteRatio >= t.OccludedWhite {
		return Occluded
	}
	if st.Variance < t.EmptyVariance && st.Spread < t.EmptySpread {
		return Empty
	}
	return Content
}

// Classify uses DefaultThresholds.
func Classify(crop *image.RGBA) Class {
	return DefaultThresholds().Classify(crop)
}
