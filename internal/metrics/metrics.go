package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all tracker metrics
type Metrics struct {
	// Tick counters
	Ticks          atomic.Uint64
	TicksSkipped   atomic.Uint64 // capture unavailable
	TicksPaused    atomic.Uint64
	TicksDiscarded atomic.Uint64 // run changed while observing
	TicksOverlap   atomic.Uint64 // rejected by the re-entrancy guard

	// Observation counters
	ObservedOccluded atomic.Uint64
	ObservedEmpty    atomic.Uint64
	ObservedContent  atomic.Uint64

	// Slot transitions
	SlotConfirmations atomic.Uint64
	QuantityChanges   atomic.Uint64
	SlotClears        atomic.Uint64

	// Ledger
	Credits       atomic.Uint64
	CreditedUnits atomic.Uint64
	GainCredits   atomic.Uint64
	GainDiscards  atomic.Uint64

	// Latency tracking
	TickLatencyMs atomic.Uint64

	// Run state (0 = idle, 1 = running, 2 = paused)
	RunState atomic.Uint64

	// Live clients
	StreamClients atomic.Int64

	// Recording state
	RecordingActive atomic.Uint64
	RecordingFrames atomic.Uint64

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) gauge(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "loot_tracker",
			Name:      name,
			Help:      help,
		},
		fn,
	))
}

func loadU(v *atomic.Uint64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

func (m *Metrics) registerPrometheusMetrics() {
	m.gauge("ticks_total", "Ticks that captured a frame", loadU(&m.Ticks))
	m.gauge("ticks_skipped_total", "Ticks skipped because capture was unavailable", loadU(&m.TicksSkipped))
	m.gauge("ticks_paused_total", "Ticks ignored while paused", loadU(&m.TicksPaused))
	m.gauge("ticks_discarded_total", "Ticks discarded because the run changed mid-tick", loadU(&m.TicksDiscarded))
	m.gauge("ticks_overlap_total", "Ticks rejected while another tick was running", loadU(&m.TicksOverlap))

	m.gauge("observations_occluded_total", "Slot observations classified occluded", loadU(&m.ObservedOccluded))
	m.gauge("observations_empty_total", "Slot observations classified empty", loadU(&m.ObservedEmpty))
	m.gauge("observations_content_total", "Slot observations classified content", loadU(&m.ObservedContent))

	m.gauge("slot_confirmations_total", "New item identities confirmed", loadU(&m.SlotConfirmations))
	m.gauge("slot_quantity_changes_total", "Confirmed stack size changes", loadU(&m.QuantityChanges))
	m.gauge("slot_clears_total", "Confirmed items that left their slot", loadU(&m.SlotClears))

	m.gauge("credits_total", "Ledger credits", loadU(&m.Credits))
	m.gauge("credited_units_total", "Units credited to the ledger", loadU(&m.CreditedUnits))
	m.gauge("gain_credits_total", "Gain readouts credited", loadU(&m.GainCredits))
	m.gauge("gain_discards_total", "Gain readouts discarded as repeats", loadU(&m.GainDiscards))

	m.gauge("tick_latency_ms", "Duration of the last tick in milliseconds", loadU(&m.TickLatencyMs))
	m.gauge("run_state", "Run state (0=idle, 1=running, 2=paused)", loadU(&m.RunState))
	m.gauge("stream_clients", "Connected SSE and WebSocket clients", func() float64 {
		return float64(m.StreamClients.Load())
	})
	m.gauge("recording_active", "Frame recording active (0=inactive, 1=active)", loadU(&m.RecordingActive))
	m.gauge("recording_frames", "Frames written to the current recording", loadU(&m.RecordingFrames))
}

// UpdateTickLatency records the duration of the last tick
func (m *Metrics) UpdateTickLatency(d time.Duration) {
	m.TickLatencyMs.Store(uint64(d.Milliseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until the listener fails
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
