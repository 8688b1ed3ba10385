package capture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kbinani/screenshot"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// ScreenSource grabs a whole display. Region coordinates are relative to
// the display's top-left corner.
type ScreenSource struct {
	display int
	seq     atomic.Uint64
}

// NewScreenSource captures the given display index.
func NewScreenSource(display int) *ScreenSource {
	return &ScreenSource{display: display}
}

// Capture implements Source.
func (s *ScreenSource) Capture(ctx context.Context) (*types.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n := screenshot.NumActiveDisplays(); s.display < 0 || s.display >= n {
		return nil, fmt.Errorf("%w: display %d of %d", ErrUnavailable, s.display, n)
	}

	bounds := screenshot.GetDisplayBounds(s.display)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	f := types.FrameFromImage(img)
	f.Timestamp = time.Now()
	f.FrameNum = s.seq.Add(1)
	return f, nil
}
