// Package slot tracks the debounced identity and stack size of a single
// inventory cell.
package slot

import (
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/fingerprint"
)

// DefaultDebounce is the number of consecutive agreeing observations
// needed before confirmed state changes.
const DefaultDebounce = 2

// Observation is one tick's reading of a slot.
type Observation struct {
	Class         fingerprint.Class
	Fingerprint   fingerprint.Fingerprint
	Quantity      int
	QuantityKnown bool
}

// Kind classifies a transition of confirmed state.
type Kind int

const (
	None            Kind = iota
	Cleared              // confirmed item left the slot
	Confirmed            // a new identity was confirmed
	QuantityChanged      // same item, new confirmed stack size
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Cleared:
		return "cleared"
	case Confirmed:
		return "confirmed"
	case QuantityChanged:
		return "quantity"
	default:
		return "unknown"
	}
}

// Transition describes a change of confirmed state. Prev* fields hold the
// state before the change.
type Transition struct {
	Kind Kind

	HadPrev      bool
	PrevFP       fingerprint.Fingerprint
	PrevQty      int
	PrevQtyKnown bool

	Fingerprint fingerprint.Fingerprint
	Qty         int
	QtyKnown    bool
}

// IdentityChanged reports whether a different item was confirmed.
func (t Transition) IdentityChanged() bool {
	return t.Kind == Confirmed
}

// State names the coarse slot state.
type State string

const (
	StateEmpty     State = "empty"
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
)

// View is a read-only snapshot of a slot.
type View struct {
	State        State                   `json:"state"`
	Fingerprint  fingerprint.Fingerprint `json:"-"`
	Signature    string                  `json:"signature,omitempty"`
	Qty          int                     `json:"qty,omitempty"`
	QtyKnown     bool                    `json:"qty_known"`
	PendingCount int                     `json:"pending_count,omitempty"`
}

// Slot is the per-cell state machine. The zero value is an empty slot.
type Slot struct {
	confirmed bool
	fp        fingerprint.Fingerprint
	qty       int
	qtyKnown  bool

	pendingCount int
	pendingFP    fingerprint.Fingerprint

	qtyCandidate int
	qtyCount     int
}

// Reset empties the slot.
func (s *Slot) Reset() {
	*s = Slot{}
}

// Seed confirms state from a single baseline observation without
// reporting a transition. Occluded observations leave the slot unconfirmed.
func (s *Slot) Seed(obs Observation) {
	s.Reset()
	if obs.Class != fingerprint.Content {
		return
	}
	s.confirmed = true
	s.fp = obs.Fingerprint
	s.qty = obs.Quantity
	s.qtyKnown = obs.QuantityKnown
}

// Observe feeds one observation. debounce is the number of consecutive
// agreeing observations required to change confirmed state.
func (s *Slot) Observe(obs Observation, m fingerprint.Matcher, debounce int) Transition {
	debounce = max(debounce, 1)

	switch obs.Class {
	case fingerprint.Occluded:
		return Transition{}

	case fingerprint.Empty:
		if !s.confirmed {
			s.Reset()
			return Transition{}
		}
		tr := s.prev(Cleared)
		s.Reset()
		return tr
	}

	if s.confirmed && m.SameItem(s.fp, obs.Fingerprint) {
		s.pendingCount = 0
		return s.observeQuantity(obs, debounce)
	}

	s.qtyCount = 0
	if s.pendingCount > 0 && m.SameItem(s.pendingFP, obs.Fingerprint) {
		s.pendingCount++
	} else {
		s.pendingFP = obs.Fingerprint
		s.pendingCount = 1
	}
	if s.pendingCount < debounce {
		return Transition{}
	}

	tr := s.prev(Confirmed)
	s.confirmed = true
	s.fp = s.pendingFP
	s.qty = obs.Quantity
	s.qtyKnown = obs.QuantityKnown
	s.pendingCount = 0

	tr.Fingerprint = s.fp
	tr.Qty = s.qty
	tr.QtyKnown = s.qtyKnown
	return tr
}

func (s *Slot) observeQuantity(obs Observation, debounce int) Transition {
	if !obs.QuantityKnown {
		return Transition{}
	}
	if s.qtyKnown && obs.Quantity == s.qty {
		s.qtyCount = 0
		return Transition{}
	}
	if s.qtyCount > 0 && s.qtyCandidate == obs.Quantity {
		s.qtyCount++
	} else {
		s.qtyCandidate = obs.Quantity
		s.qtyCount = 1
	}
	if s.qtyCount < debounce {
		return Transition{}
	}

	tr := s.prev(QuantityChanged)
	s.qty = s.qtyCandidate
	s.qtyKnown = true
	s.qtyCount = 0

	tr.Fingerprint = s.fp
	tr.Qty = s.qty
	tr.QtyKnown = true
	return tr
}

func (s *Slot) prev(kind Kind) Transition {
	return Transition{
		Kind:         kind,
		HadPrev:      s.confirmed,
		PrevFP:       s.fp,
		PrevQty:      s.qty,
		PrevQtyKnown: s.qtyKnown,
	}
}

// Confirmed returns the confirmed fingerprint, if any.
func (s *Slot) Confirmed() (fingerprint.Fingerprint, bool) {
	return s.fp, s.confirmed
}

// Quantity returns the confirmed stack size, if known.
func (s *Slot) Quantity() (int, bool) {
	if !s.confirmed {
		return 0, false
	}
	return s.qty, s.qtyKnown
}

// View snapshots the slot.
func (s *Slot) View() View {
	switch {
	case s.confirmed:
		v := View{
			State:        StateConfirmed,
			Fingerprint:  s.fp,
			Signature:    s.fp.String(),
			QtyKnown:     s.qtyKnown,
			PendingCount: s.pendingCount,
		}
		if s.qtyKnown {
			v.Qty = s.qty
		}
		return v
	case s.pendingCount > 0:
		return View{State: StatePending, PendingCount: s.pendingCount}
	default:
		return View{State: StateEmpty}
	}
}
