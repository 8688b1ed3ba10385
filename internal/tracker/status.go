package tracker

import (
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/gain"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ledger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/slot"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/storage"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// Status is a point-in-time summary for the UI.
type Status struct {
	RunState      RunState         `json:"run_state"`
	Baselined     bool             `json:"baselined"`
	InvRegion     *types.Rect      `json:"inv_region"`
	MoneyRegion   *types.Rect      `json:"money_region"`
	Session       *storage.Session `json:"session"`
	LootEntries   int              `json:"loot_entries"`
	ItemTotal     int64            `json:"item_total"`
	Coins         int64            `json:"coins"`
	SessionCount  int              `json:"session_count"`
	LastTick      time.Time        `json:"last_tick"`
	LastFrameNum  uint64           `json:"last_frame_num"`
	OCREnabled    bool             `json:"ocr_enabled"`
	GainEnabled   bool             `json:"gain_enabled"`
	SchedulerLive bool             `json:"scheduler_live"`
}

// RunState returns the controller state.
func (t *Tracker) RunState() RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.run
}

// Status summarises the tracker.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{
		RunState:      t.run,
		Baselined:     t.baselined,
		InvRegion:     cloneRect(t.state.Settings.InvRegion),
		MoneyRegion:   cloneRect(t.state.Settings.MoneyRegion),
		Session:       t.state.Active.Clone(),
		LootEntries:   t.ledger.Len(),
		SessionCount:  len(t.state.Sessions),
		LastTick:      t.lastTick,
		OCREnabled:    t.reader != nil,
		GainEnabled:   t.gainReader != nil,
		SchedulerLive: t.sched.Running(),
	}
	if e, ok := t.ledger.Get(gain.Key); ok {
		st.Coins = e.Qty
	}
	st.ItemTotal = t.ledger.Total() - st.Coins
	if t.lastFrame != nil {
		st.LastFrameNum = t.lastFrame.FrameNum
	}
	return st
}

// Loot returns the current run's ledger, largest first.
func (t *Tracker) Loot() []ledger.Entry {
	return t.ledger.Entries()
}

// ActiveSession returns a copy of the running session, or nil.
func (t *Tracker) ActiveSession() *storage.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Active.Clone()
}

// Sessions returns sealed sessions, most recent first.
func (t *Tracker) Sessions() []storage.Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]storage.Session, len(t.state.Sessions))
	for i := range t.state.Sessions {
		out[i] = *t.state.Sessions[i].Clone()
	}
	return out
}

// State returns a copy of the persistable state.
func (t *Tracker) State() *storage.AppState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// Regions returns the calibrated regions; nil when unset.
func (t *Tracker) Regions() (inv, money *types.Rect) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneRect(t.state.Settings.InvRegion), cloneRect(t.state.Settings.MoneyRegion)
}

// Slots snapshots every slot state machine.
func (t *Tracker) Slots() [grid.SlotCount]slot.View {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out [grid.SlotCount]slot.View
	for i := range t.slots {
		out[i] = t.slots[i].View()
	}
	return out
}

// IconPNG returns the cached icon for sig.
func (t *Tracker) IconPNG(sig string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.icons[sig]
	return b, ok && b != nil
}

// LastFrame returns the most recently applied frame. Callers must not
// modify it.
func (t *Tracker) LastFrame() *types.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastFrame
}

func cloneRect(r *types.Rect) *types.Rect {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
