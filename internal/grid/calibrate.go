package grid

import (
	"image"
	"sync"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// Calibrator builds regions from two marked corner points. Each channel
// ("inventory", "money") keeps at most one pending corner.
type Calibrator struct {
	mu      sync.Mutex
	pending map[string]image.Point
}

// NewCalibrator returns an empty calibrator.
func NewCalibrator() *Calibrator {
	return &Calibrator{pending: make(map[string]image.Point)}
}

// Mark records a corner for channel. The first call stores the point and
// returns false; the second returns the spanned region and clears the
// pending corner.
func (c *Calibrator) Mark(channel string, p image.Point) (types.Rect, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	first, ok := c.pending[channel]
	if !ok {
		c.pending[channel] = p
		return types.Rect{}, false
	}
	delete(c.pending, channel)
	return RegionFromCorners(first, p), true
}

// Pending reports whether channel has a stored first corner.
func (c *Calibrator) Pending(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[channel]
	return ok
}

// Cancel drops any pending corner for channel.
func (c *Calibrator) Cancel(channel string) {
	c.mu.Lock()
	delete(c.pending, channel)
	c.mu.Unlock()
}

// RegionFromCorners spans two arbitrary corners. Degenerate spans are
// widened to one pixel.
func RegionFromCorners(a, b image.Point) types.Rect {
	x1, x2 := min(a.X, b.X), max(a.X, b.X)
	y1, y2 := min(a.Y, b.Y), max(a.Y, b.Y)
	return types.Rect{
		X: x1,
		Y: y1,
		W: max(1, x2-x1),
		H: max(1, y2-y1),
	}
}
