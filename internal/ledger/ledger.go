// Package ledger accumulates credited items for a run.
package ledger

import (
	"sort"
	"sync"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/slot"
)

// Entry is one ledger line.
type Entry struct {
	Key     string `json:"key"`
	Name    string `json:"name"`
	Qty     int64  `json:"qty"`
	IconSig string `json:"iconSig,omitempty"`

	seq uint64
}

// Ledger is a keyed, monotonically growing set of entries. Safe for
// concurrent use.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	nextSeq uint64
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*Entry)}
}

// Credit adds qty to key, creating the entry at zero when missing.
// Non-positive quantities are ignored. The name and icon signature are set
// on creation only. It returns the new cumulative quantity.
func (l *Ledger) Credit(key, name, iconSig string, qty int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &Entry{Key: key, Name: name, IconSig: iconSig, seq: l.nextSeq}
		l.nextSeq++
		l.entries[key] = e
	}
	if qty > 0 {
		e.Qty += qty
	}
	return e.Qty
}

// Rename updates the display name of key. It reports whether the entry
// exists.
func (l *Ledger) Rename(key, name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if ok {
		e.Name = name
	}
	return ok
}

// Get returns a copy of the entry for key.
func (l *Ledger) Get(key string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Entries returns copies ordered by quantity descending, ties by insertion.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Qty != out[j].Qty {
			return out[i].Qty > out[j].Qty
		}
		return out[i].seq < out[j].seq
	})
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Total returns the sum of all quantities.
func (l *Ledger) Total() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n int64
	for _, e := range l.entries {
		n += e.Qty
	}
	return n
}

// Reset drops every entry.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = make(map[string]*Entry)
	l.nextSeq = 0
	l.mu.Unlock()
}

// Delta returns the quantity a slot transition credits:
//   - a new identity credits its full quantity, or 1 when unreadable
//   - a confirmed increase of the same item credits the difference
//   - decreases, removals and an unknown base becoming readable credit nothing
func Delta(tr slot.Transition) int64 {
	switch tr.Kind {
	case slot.Confirmed:
		if tr.QtyKnown && tr.Qty > 0 {
			return int64(tr.Qty)
		}
		return 1
	case slot.QuantityChanged:
		if tr.PrevQtyKnown && tr.QtyKnown && tr.Qty > tr.PrevQty {
			return int64(tr.Qty - tr.PrevQty)
		}
	}
	return 0
}
