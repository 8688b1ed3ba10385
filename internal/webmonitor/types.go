package webmonitor

import (
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ledger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/slot"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/tracker"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// Calibration channels.
const (
	ChannelInventory = "inventory"
	ChannelMoney     = "money"
)

// RegionRequest is the body of PUT /api/regions/{channel}.
type RegionRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the request to a screen rectangle.
func (r RegionRequest) Rect() types.Rect {
	return types.Rect{X: r.X, Y: r.Y, W: r.W, H: r.H}
}

// PointRequest is one calibration click.
type PointRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// StartRequest is the optional body of POST /api/run/start.
type StartRequest struct {
	Label string `json:"label"`
}

// RenameRequest is the body of PUT /api/icons/{sig}/name.
type RenameRequest struct {
	Name string `json:"name"`
}

// SlotPayload is one slot's state machine snapshot.
type SlotPayload struct {
	Index int `json:"index"`
	slot.View
}

// StatusPayload is served by /api/status and pushed over SSE and WebSocket.
type StatusPayload struct {
	Tracker       tracker.Status           `json:"tracker"`
	Loot          []ledger.Entry           `json:"loot"`
	Slots         []SlotPayload            `json:"slots"`
	Recording     *capture.RecordingStatus `json:"recording,omitempty"`
	Calibrating   map[string]bool          `json:"calibrating"`
	StreamClients int64                    `json:"stream_clients"`
	Timestamp     float64                  `json:"timestamp"`
}
