package gain

import (
	"testing"
	"time"
)

func TestRepeatedSignatureWithinCooldown(t *testing.T) {
	d := NewDetector(1200 * time.Millisecond)
	t0 := time.Unix(1000, 0)

	if got := d.Observe(120, true, t0); got != 120 {
		t.Fatalf("first reading credited %d", got)
	}
	if got := d.Observe(120, true, t0.Add(600*time.Millisecond)); got != 0 {
		t.Fatalf("repeat within cooldown credited %d", got)
	}
}

func TestOverlayPersistenceSlidesWindow(t *testing.T) {
	d := NewDetector(time.Second)
	t0 := time.Unix(1000, 0)
	d.Observe(50, true, t0)

	// still visible on each tick; the window keeps moving
	for i := 1; i <= 5; i++ {
		if got := d.Observe(50, true, t0.Add(time.Duration(i)*600*time.Millisecond)); got != 0 {
			t.Fatalf("tick %d credited %d", i, got)
		}
	}
	// overlay gone for longer than the cooldown, same value again is new
	if got := d.Observe(50, true, t0.Add(5*600*time.Millisecond+2*time.Second)); got != 50 {
		t.Fatalf("fresh gain credited %d", got)
	}
}

func TestDifferentSignatureCreditsImmediately(t *testing.T) {
	d := NewDetector(0)
	if d.Cooldown() != DefaultCooldown {
		t.Fatalf("cooldown = %v", d.Cooldown())
	}
	t0 := time.Unix(0, 0)
	d.Observe(120, true, t0)
	if got := d.Observe(900, true, t0.Add(100*time.Millisecond)); got != 900 {
		t.Fatalf("different gain credited %d", got)
	}
}

func TestUnknownReadingsIgnored(t *testing.T) {
	d := NewDetector(time.Second)
	t0 := time.Unix(0, 0)
	d.Observe(10, true, t0)
	if got := d.Observe(0, false, t0.Add(100*time.Millisecond)); got != 0 {
		t.Fatalf("unknown reading credited %d", got)
	}
	if got := d.Observe(-5, true, t0); got != 0 {
		t.Fatalf("negative reading credited %d", got)
	}
	if got := d.Observe(10, true, t0.Add(500*time.Millisecond)); got != 0 {
		t.Fatalf("gap of unknown readings broke dedup: %d", got)
	}
	d.Reset()
	if got := d.Observe(10, true, t0.Add(600*time.Millisecond)); got != 10 {
		t.Fatalf("after reset credited %d", got)
	}
}
