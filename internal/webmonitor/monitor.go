package webmonitor

import (
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/metrics"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/tracker"
)

// Monitor assembles status snapshots from the tracker and its satellites.
type Monitor struct {
	tracker  *tracker.Tracker
	recorder *capture.Recorder
	calib    *grid.Calibrator
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewMonitor creates a Monitor. recorder and m may be nil.
func NewMonitor(t *tracker.Tracker, recorder *capture.Recorder, calib *grid.Calibrator, m *metrics.Metrics) *Monitor {
	if calib == nil {
		calib = grid.NewCalibrator()
	}
	return &Monitor{
		tracker:  t,
		recorder: recorder,
		calib:    calib,
		metrics:  m,
		now:      time.Now,
	}
}

// Snapshot returns the current status payload.
func (m *Monitor) Snapshot() StatusPayload {
	views := m.tracker.Slots()
	slots := make([]SlotPayload, len(views))
	for i, v := range views {
		slots[i] = SlotPayload{Index: i, View: v}
	}

	p := StatusPayload{
		Tracker: m.tracker.Status(),
		Loot:    m.tracker.Loot(),
		Slots:   slots,
		Calibrating: map[string]bool{
			ChannelInventory: m.calib.Pending(ChannelInventory),
			ChannelMoney:     m.calib.Pending(ChannelMoney),
		},
		Timestamp: float64(m.now().UnixMilli()) / 1000,
	}
	if m.recorder != nil {
		rs := m.recorder.Status()
		p.Recording = &rs
	}
	if m.metrics != nil {
		p.StreamClients = m.metrics.StreamClients.Load()
	}
	return p
}
