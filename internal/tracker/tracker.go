// Package tracker drives the capture loop, owns the per-slot state machines
// and the run ledger, and manages run sessions.
package tracker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/eventlog"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/fingerprint"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/gain"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ledger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/metrics"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ocr"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/slot"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/storage"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

var log = logger.For("Tracker")

var (
	ErrNoInventoryRegion = errors.New("inventory region not calibrated")
	ErrRunActive         = errors.New("a run is active")
	ErrInvalidRegion     = errors.New("region must have positive width and height")
	ErrTickInProgress    = errors.New("tick already in progress")
)

// RunState is the controller state.
type RunState string

const (
	Idle    RunState = "idle"
	Running RunState = "running"
	Paused  RunState = "paused"
)

func (s RunState) gauge() uint64 {
	switch s {
	case Running:
		return 1
	case Paused:
		return 2
	default:
		return 0
	}
}

const DefaultInterval = 600 * time.Millisecond

// EventSink receives one event per credit.
type EventSink interface {
	Write(ev eventlog.Event) error
}

// FrameSink receives every captured frame.
type FrameSink interface {
	SendFrame(f *types.Frame) bool
}

// Options configures a Tracker. Only Source is required.
type Options struct {
	Source capture.Source

	// Reader reads stack sizes. Nil disables OCR and every item counts as
	// a stack of one.
	Reader ocr.Reader
	// GainReader reads the "+N" overlay. Nil disables gain detection.
	GainReader ocr.Reader

	State    *storage.AppState
	Metrics  *metrics.Metrics
	Events   EventSink
	Recorder FrameSink

	Interval       time.Duration
	Debounce       int
	MatchThreshold int
	GainCooldown   time.Duration
	Thresholds     *fingerprint.Thresholds

	Clock func() time.Time
	NewID func() string
}

// Tracker is the run controller.
type Tracker struct {
	source     capture.Source
	reader     ocr.Reader
	gainReader ocr.Reader
	events     EventSink
	recorder   FrameSink
	metrics    *metrics.Metrics
	clock      func() time.Time
	newID      func() string
	debounce   int
	matcher    fingerprint.Matcher
	thresholds fingerprint.Thresholds
	sched      *Scheduler

	// ctl serialises lifecycle calls so scheduler start/stop never race.
	ctl sync.Mutex
	// busy rejects overlapping ticks.
	busy atomic.Bool

	mu        sync.Mutex
	state     *storage.AppState
	run       RunState
	gen       uint64
	baselined bool
	slots     [grid.SlotCount]slot.Slot
	ledger    *ledger.Ledger
	gain      *gain.Detector
	icons     map[string][]byte
	lastFrame *types.Frame
	lastTick  time.Time

	obsMu     sync.Mutex
	observers map[int]func()
	nextObsID int
}

// New builds an idle tracker.
func New(opts Options) *Tracker {
	t := &Tracker{
		source:     opts.Source,
		reader:     opts.Reader,
		gainReader: opts.GainReader,
		events:     opts.Events,
		recorder:   opts.Recorder,
		metrics:    opts.Metrics,
		clock:      opts.Clock,
		newID:      opts.NewID,
		debounce:   opts.Debounce,
		matcher:    fingerprint.Matcher{Threshold: opts.MatchThreshold},
		state:      opts.State,
		run:        Idle,
		ledger:     ledger.New(),
		gain:       gain.NewDetector(opts.GainCooldown),
		icons:      make(map[string][]byte),
		observers:  make(map[int]func()),
	}
	if opts.Thresholds != nil {
		t.thresholds = *opts.Thresholds
	} else {
		t.thresholds = fingerprint.DefaultThresholds()
	}
	if t.metrics == nil {
		t.metrics = metrics.New()
	}
	if t.clock == nil {
		t.clock = time.Now
	}
	if t.newID == nil {
		t.newID = uuid.NewString
	}
	if t.debounce <= 0 {
		t.debounce = slot.DefaultDebounce
	}
	if opts.MatchThreshold <= 0 {
		t.matcher.Threshold = fingerprint.MatchThreshold
	}
	if t.state == nil {
		t.state = storage.NewAppState()
	}
	t.state.Normalize()

	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	t.sched = NewScheduler(interval, t.Tick)
	return t
}

// Start begins a run labelled label. The first successful capture becomes
// the baseline.
func (t *Tracker) Start(ctx context.Context, label string) error {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if t.state.Settings.InvRegion == nil {
		t.mu.Unlock()
		return ErrNoInventoryRegion
	}
	if t.run != Idle {
		t.mu.Unlock()
		return ErrRunActive
	}
	t.resetRunLocked()
	t.run = Running
	label = strings.TrimSpace(label)
	if label == "" {
		label = "Run " + t.clock().Format("2006-01-02 15:04")
	}
	t.state.Active = &storage.Session{
		ID:        t.newID(),
		Label:     label,
		StartedAt: t.clock(),
		Loot:      []ledger.Entry{},
	}
	id := t.state.Active.ID
	t.mu.Unlock()

	t.metrics.RunState.Store(Running.gauge())
	log.Info("run %s started (%s)", id, label)

	if err := t.Tick(ctx); err != nil {
		log.Warn("baseline tick: %v", err)
	}
	t.sched.Start(context.WithoutCancel(ctx))
	t.notify()
	return nil
}

// Pause suspends crediting. No-op unless running.
func (t *Tracker) Pause() {
	t.setPaused(true)
}

// Resume continues a paused run. No-op unless paused.
func (t *Tracker) Resume() {
	t.setPaused(false)
}

// TogglePause flips between running and paused. No-op while idle.
func (t *Tracker) TogglePause() {
	t.mu.Lock()
	paused := t.run == Paused
	idle := t.run == Idle
	t.mu.Unlock()
	if idle {
		return
	}
	t.setPaused(!paused)
}

func (t *Tracker) setPaused(paused bool) {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	from, to := Running, Paused
	if !paused {
		from, to = Paused, Running
	}
	if t.run != from {
		t.mu.Unlock()
		return
	}
	t.run = to
	t.mu.Unlock()

	t.metrics.RunState.Store(to.gauge())
	log.Info("run %s", to)
	t.notify()
}

// Stop ends the run, seals the session into history and returns it. It
// returns nil when no run is active.
func (t *Tracker) Stop() *storage.Session {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.mu.Lock()
	if t.run == Idle {
		t.mu.Unlock()
		return nil
	}
	t.run = Idle
	t.gen++
	sealed := t.sealLocked()
	t.mu.Unlock()

	t.sched.Stop()
	t.metrics.RunState.Store(Idle.gauge())
	if sealed != nil {
		log.Info("run %s stopped with %d loot entries", sealed.ID, len(sealed.Loot))
	}
	t.notify()
	return sealed
}

func (t *Tracker) sealLocked() *storage.Session {
	s := t.state.Active
	if s == nil {
		return nil
	}
	now := t.clock()
	s.EndedAt = &now
	s.Loot = t.ledger.Entries()
	t.state.Sessions = append([]storage.Session{*s}, t.state.Sessions...)
	t.state.Active = nil
	return s.Clone()
}

// Reset abandons any run without sealing it and clears run state. History
// is kept.
func (t *Tracker) Reset() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.resetAll(false)
}

// ClearAll deletes history and icon names, then resets.
func (t *Tracker) ClearAll() {
	t.ctl.Lock()
	defer t.ctl.Unlock()
	t.resetAll(true)
}

func (t *Tracker) resetAll(clearHistory bool) {
	t.mu.Lock()
	t.run = Idle
	t.gen++
	t.state.Active = nil
	t.resetRunLocked()
	if clearHistory {
		t.state.Sessions = []storage.Session{}
		t.state.IconNames = make(map[string]string)
		t.icons = make(map[string][]byte)
	}
	t.mu.Unlock()

	t.sched.Stop()
	t.metrics.RunState.Store(Idle.gauge())
	if clearHistory {
		log.Info("history cleared")
	} else {
		log.Info("run reset")
	}
	t.notify()
}

func (t *Tracker) resetRunLocked() {
	t.gen++
	t.baselined = false
	for i := range t.slots {
		t.slots[i].Reset()
	}
	t.ledger.Reset()
	t.gain.Reset()
}

// SetInventoryRegion calibrates the inventory grid. Rejected while a run
// is active.
func (t *Tracker) SetInventoryRegion(r types.Rect) error {
	if !r.Valid() {
		return ErrInvalidRegion
	}
	t.mu.Lock()
	if t.run != Idle {
		t.mu.Unlock()
		return ErrRunActive
	}
	t.state.Settings.InvRegion = &r
	t.mu.Unlock()

	log.Info("inventory region set to %+v", r)
	t.notify()
	return nil
}

// SetMoneyRegion calibrates the gain readout area.
func (t *Tracker) SetMoneyRegion(r types.Rect) error {
	if !r.Valid() {
		return ErrInvalidRegion
	}
	t.mu.Lock()
	t.state.Settings.MoneyRegion = &r
	t.mu.Unlock()

	log.Info("money region set to %+v", r)
	t.notify()
	return nil
}

// Rename sets the display name for an icon signature and updates the live
// ledger. The signature is stored in canonical form. An empty name
// restores the default.
func (t *Tracker) Rename(sig, name string) error {
	fp, err := fingerprint.Parse(sig)
	if err != nil {
		return err
	}
	sig = fp.String()
	name = strings.TrimSpace(name)

	t.mu.Lock()
	if name == "" {
		delete(t.state.IconNames, sig)
	} else {
		t.state.IconNames[sig] = name
	}
	if t.ledger.Rename(sig, t.displayNameLocked(sig)) {
		t.refreshActiveLocked()
	}
	t.mu.Unlock()

	t.notify()
	return nil
}

// DisplayName returns the user name for sig or a placeholder.
func (t *Tracker) DisplayName(sig string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.displayNameLocked(sig)
}

func (t *Tracker) displayNameLocked(sig string) string {
	if name, ok := t.state.IconNames[sig]; ok && name != "" {
		return name
	}
	short := sig
	if len(short) > 6 {
		short = short[:6]
	}
	return "Unidentified (" + short + ")"
}

func (t *Tracker) refreshActiveLocked() {
	if t.state.Active != nil {
		t.state.Active.Loot = t.ledger.Entries()
	}
}

// Subscribe registers fn to be called after every tick and mutation.
func (t *Tracker) Subscribe(fn func()) int {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	id := t.nextObsID
	t.nextObsID++
	t.observers[id] = fn
	return id
}

// Unsubscribe removes an observer.
func (t *Tracker) Unsubscribe(id int) {
	t.obsMu.Lock()
	delete(t.observers, id)
	t.obsMu.Unlock()
}

func (t *Tracker) notify() {
	t.obsMu.Lock()
	fns := make([]func(), 0, len(t.observers))
	for _, fn := range t.observers {
		fns = append(fns, fn)
	}
	t.obsMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
