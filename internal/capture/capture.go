// Package capture supplies frames to the tracker from the screen or from a
// recording, and records captured frames for later replay.
package capture

import (
	"context"
	"errors"
	"fmt"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// ErrUnavailable means no frame could be captured this time. Callers skip
// the tick.
var ErrUnavailable = errors.New("capture unavailable")

// ErrEndOfRecording is returned by a non-looping replay once every frame
// has been served.
var ErrEndOfRecording = fmt.Errorf("%w: end of recording", ErrUnavailable)

var log = logger.For("Capture")

// Source supplies one full frame per call.
type Source interface {
	Capture(ctx context.Context) (*types.Frame, error)
}

// Func adapts a function to Source.
type Func func(ctx context.Context) (*types.Frame, error)

// Capture calls f.
func (f Func) Capture(ctx context.Context) (*types.Frame, error) { return f(ctx) }

// Open builds the configured source. kind is "screen" or "replay".
func Open(kind string, display int, replayPath string, loop bool) (Source, error) {
	switch kind {
	case "", "screen":
		return NewScreenSource(display), nil
	case "replay":
		src, err := OpenReplay(replayPath, loop)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unknown capture source %q", kind)
	}
}
