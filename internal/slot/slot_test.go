package slot

import (
	"testing"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/fingerprint"
)

const (
	fpA fingerprint.Fingerprint = 0x0000000000000000
	fpB fingerprint.Fingerprint = 0xFFFFFFFF00000000
	// fpA with three bits of jitter
	fpA2 fingerprint.Fingerprint = 0x0000000000000007
)

var matcher = fingerprint.Matcher{Threshold: fingerprint.MatchThreshold}

func content(fp fingerprint.Fingerprint, qty int) Observation {
	return Observation{Class: fingerprint.Content, Fingerprint: fp, Quantity: qty, QuantityKnown: qty > 0}
}

func empty() Observation    { return Observation{Class: fingerprint.Empty} }
func occluded() Observation { return Observation{Class: fingerprint.Occluded} }

func requireKind(t *testing.T, got Transition, want Kind) {
	t.Helper()
	if got.Kind != want {
		t.Fatalf("transition kind = %s, want %s (%+v)", got.Kind, want, got)
	}
}

func TestConfirmAfterTwoObservations(t *testing.T) {
	var s Slot
	requireKind(t, s.Observe(content(fpA, 5), matcher, 2), None)
	if _, ok := s.Confirmed(); ok {
		t.Fatalf("confirmed after a single observation")
	}
	if s.View().State != StatePending {
		t.Fatalf("view state = %s", s.View().State)
	}

	tr := s.Observe(content(fpA2, 6), matcher, 2)
	requireKind(t, tr, Confirmed)
	if !tr.IdentityChanged() || tr.HadPrev {
		t.Fatalf("unexpected transition %+v", tr)
	}
	// First pending fingerprint is kept, quantity comes from the confirming tick.
	if tr.Fingerprint != fpA || tr.Qty != 6 || !tr.QtyKnown {
		t.Fatalf("unexpected confirmed state %+v", tr)
	}
}

func TestFlickerNeverConfirms(t *testing.T) {
	var s Slot
	s.Seed(content(fpA, 1))

	seq := []fingerprint.Fingerprint{fpB, fpA, fpB, fpA, fpB}
	for i, fp := range seq {
		if tr := s.Observe(content(fp, 1), matcher, 2); tr.Kind != None {
			t.Fatalf("step %d: unexpected transition %+v", i, tr)
		}
	}
	if fp, _ := s.Confirmed(); fp != fpA {
		t.Fatalf("confirmed fingerprint drifted to %s", fp)
	}
}

func TestOccludedIsIgnored(t *testing.T) {
	var s Slot
	s.Seed(content(fpA, 3))
	for range 5 {
		requireKind(t, s.Observe(occluded(), matcher, 2), None)
	}
	if q, ok := s.Quantity(); !ok || q != 3 {
		t.Fatalf("quantity = %d, %v", q, ok)
	}
}

func TestEmptyClearsImmediately(t *testing.T) {
	var s Slot
	s.Seed(content(fpA, 3))
	tr := s.Observe(empty(), matcher, 2)
	requireKind(t, tr, Cleared)
	if !tr.HadPrev || tr.PrevFP != fpA || tr.PrevQty != 3 {
		t.Fatalf("unexpected cleared transition %+v", tr)
	}
	if _, ok := s.Confirmed(); ok {
		t.Fatalf("slot still confirmed")
	}
	requireKind(t, s.Observe(empty(), matcher, 2), None)
}

func TestIdentityReplacement(t *testing.T) {
	var s Slot
	s.Seed(content(fpA, 5))
	requireKind(t, s.Observe(content(fpB, 3), matcher, 2), None)
	tr := s.Observe(content(fpB, 3), matcher, 2)
	requireKind(t, tr, Confirmed)
	if tr.PrevFP != fpA || tr.PrevQty != 5 || tr.Fingerprint != fpB || tr.Qty != 3 {
		t.Fatalf("unexpected transition %+v", tr)
	}
}

func TestQuantityDebounce(t *testing.T) {
	var s Slot
	s.Seed(content(fpA, 5))

	requireKind(t, s.Observe(content(fpA, 9), matcher, 2), None)
	tr := s.Observe(content(fpA2, 9), matcher, 2)
	requireKind(t, tr, QuantityChanged)
	if tr.PrevQty != 5 || tr.Qty != 9 || tr.Fingerprint != fpA {
		t.Fatalf("unexpected transition %+v", tr)
	}

	// a single misread does not move the confirmed quantity
	requireKind(t, s.Observe(content(fpA, 90), matcher, 2), None)
	requireKind(t, s.Observe(content(fpA, 9), matcher, 2), None)
	requireKind(t, s.Observe(content(fpA, 90), matcher, 2), None)
	if q, _ := s.Quantity(); q != 9 {
		t.Fatalf("quantity = %d, want 9", q)
	}
}

func TestUnknownQuantityKeepsConfirmed(t *testing.T) {
	var s Slot
	s.Seed(content(fpA, 4))
	for range 3 {
		requireKind(t, s.Observe(content(fpA, 0), matcher, 2), None)
	}
	if q, ok := s.Quantity(); !ok || q != 4 {
		t.Fatalf("quantity = %d, %v", q, ok)
	}
}

func TestSeedOccludedLeavesSlotUnconfirmed(t *testing.T) {
	var s Slot
	s.Seed(occluded())
	if s.View().State != StateEmpty {
		t.Fatalf("view state = %s", s.View().State)
	}
}

func TestDebounceOfOne(t *testing.T) {
	var s Slot
	requireKind(t, s.Observe(content(fpB, 2), matcher, 1), Confirmed)
}
