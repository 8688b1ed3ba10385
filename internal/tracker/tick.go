package tracker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/capture"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/eventlog"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/fingerprint"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/gain"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/grid"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ledger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/slot"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// sample is everything read from one frame before state is touched.
type sample struct {
	frame     *types.Frame
	obs       [grid.SlotCount]slot.Observation
	icons     [grid.SlotCount]*image.RGBA
	gain      int
	gainKnown bool
}

type iconCrop struct {
	sig  string
	crop *image.RGBA
}

// Tick runs one capture cycle. Observation happens without the state lock;
// the results are applied in one step only if the run is unchanged and
// still running. Capture failures skip the tick and return nil.
func (t *Tracker) Tick(ctx context.Context) error {
	if !t.busy.CompareAndSwap(false, true) {
		t.metrics.TicksOverlap.Add(1)
		return ErrTickInProgress
	}
	defer t.busy.Store(false)

	t.mu.Lock()
	gen, run, baselined := t.gen, t.run, t.baselined
	var inv, money types.Rect
	if t.state.Settings.InvRegion != nil {
		inv = *t.state.Settings.InvRegion
	}
	if t.state.Settings.MoneyRegion != nil {
		money = *t.state.Settings.MoneyRegion
	}
	t.mu.Unlock()

	switch run {
	case Idle:
		return nil
	case Paused:
		t.metrics.TicksPaused.Add(1)
		return nil
	}

	started := time.Now()
	frame, err := t.source.Capture(ctx)
	if err != nil {
		t.metrics.TicksSkipped.Add(1)
		if errors.Is(err, capture.ErrUnavailable) || errors.Is(err, context.Canceled) {
			log.Debug("tick skipped: %v", err)
			return nil
		}
		return err
	}
	t.metrics.Ticks.Add(1)

	s := t.observe(frame, inv, money, baselined)
	now := t.clock()

	t.mu.Lock()
	if t.gen != gen || t.run != Running {
		t.mu.Unlock()
		t.metrics.TicksDiscarded.Add(1)
		return nil
	}
	var (
		events []eventlog.Event
		icons  []iconCrop
	)
	if !t.baselined {
		icons = t.seedLocked(s)
		t.baselined = true
		log.Info("baseline captured from frame %d", frame.FrameNum)
	} else {
		events, icons = t.applyLocked(s, now)
	}
	t.lastFrame = frame
	t.lastTick = now
	t.mu.Unlock()

	t.finishTick(frame, events, icons)
	t.metrics.UpdateTickLatency(time.Since(started))
	t.notify()
	return nil
}

func (t *Tracker) observe(frame *types.Frame, inv, money types.Rect, baselined bool) *sample {
	s := &sample{frame: frame}
	for _, cell := range grid.Slots(inv) {
		icon := grid.Crop(frame, cell.Icon)
		o := slot.Observation{Class: t.thresholds.Classify(icon)}

		switch o.Class {
		case fingerprint.Occluded:
			t.metrics.ObservedOccluded.Add(1)
		case fingerprint.Empty:
			t.metrics.ObservedEmpty.Add(1)
		case fingerprint.Content:
			t.metrics.ObservedContent.Add(1)
			o.Fingerprint = fingerprint.Compute(icon)
			if t.reader == nil {
				o.Quantity, o.QuantityKnown = 1, true
			} else {
				o.Quantity, o.QuantityKnown = t.reader.Read(grid.Crop(frame, cell.Text))
			}
			s.icons[cell.Index] = icon
		}
		s.obs[cell.Index] = o
	}

	if baselined && t.gainReader != nil && money.Valid() {
		s.gain, s.gainKnown = t.gainReader.Read(grid.Crop(frame, money))
	}
	return s
}

func (t *Tracker) seedLocked(s *sample) []iconCrop {
	var icons []iconCrop
	for i := range t.slots {
		t.slots[i].Seed(s.obs[i])
		if fp, ok := t.slots[i].Confirmed(); ok {
			icons = t.appendIconLocked(icons, fp.String(), s.icons[i])
		}
	}
	return icons
}

func (t *Tracker) applyLocked(s *sample, now time.Time) ([]eventlog.Event, []iconCrop) {
	var (
		events []eventlog.Event
		icons  []iconCrop
	)
	sessionID := ""
	if t.state.Active != nil {
		sessionID = t.state.Active.ID
	}
	credit := func(key, name, iconSig, source string, qty int64, slotIdx *int) {
		t.ledger.Credit(key, name, iconSig, qty)
		t.metrics.Credits.Add(1)
		t.metrics.CreditedUnits.Add(uint64(qty))
		events = append(events, eventlog.Event{
			TS:        now,
			SessionID: sessionID,
			Key:       key,
			Name:      name,
			Qty:       qty,
			Source:    source,
			Slot:      slotIdx,
		})
	}

	for i := range t.slots {
		tr := t.slots[i].Observe(s.obs[i], t.matcher, t.debounce)
		switch tr.Kind {
		case slot.None:
			continue
		case slot.Cleared:
			t.metrics.SlotClears.Add(1)
			continue
		case slot.Confirmed:
			t.metrics.SlotConfirmations.Add(1)
		case slot.QuantityChanged:
			t.metrics.QuantityChanges.Add(1)
		}

		sig := tr.Fingerprint.String()
		if tr.Kind == slot.Confirmed {
			icons = t.appendIconLocked(icons, sig, s.icons[i])
		}
		if delta := ledger.Delta(tr); delta > 0 {
			idx := i
			credit(sig, t.displayNameLocked(sig), sig, eventlog.SourceSlot, delta, &idx)
		}
	}

	if s.gainKnown {
		if n := t.gain.Observe(s.gain, true, now); n > 0 {
			t.metrics.GainCredits.Add(1)
			credit(gain.Key, gain.Name, "", eventlog.SourceGain, int64(n), nil)
		} else {
			t.metrics.GainDiscards.Add(1)
		}
	}

	if len(events) > 0 {
		t.refreshActiveLocked()
	}
	return events, icons
}

func (t *Tracker) appendIconLocked(icons []iconCrop, sig string, crop *image.RGBA) []iconCrop {
	if crop == nil {
		return icons
	}
	if _, ok := t.icons[sig]; ok {
		return icons
	}
	t.icons[sig] = nil // reserved until encoded
	return append(icons, iconCrop{sig: sig, crop: crop})
}

func (t *Tracker) finishTick(frame *types.Frame, events []eventlog.Event, icons []iconCrop) {
	if t.events != nil {
		for _, ev := range events {
			if err := t.events.Write(ev); err != nil {
				log.Warn("event log write failed: %v", err)
				break
			}
		}
	}

	for _, ic := range icons {
		var buf bytes.Buffer
		if err := png.Encode(&buf, ic.crop); err != nil {
			log.Debug("icon %s not cached: %v", ic.sig, err)
			continue
		}
		t.mu.Lock()
		if v, ok := t.icons[ic.sig]; ok && v == nil {
			t.icons[ic.sig] = buf.Bytes()
		}
		t.mu.Unlock()
	}

	if t.recorder != nil && t.recorder.SendFrame(frame) {
		t.metrics.RecordingFrames.Add(1)
	}
}
