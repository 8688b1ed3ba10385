// Package gain de-duplicates the transient "+N" currency readout.
package gain

import (
	"strconv"
	"time"
)

const (
	// Key and Name identify the currency ledger entry.
	Key  = "coins:pouch"
	Name = "Coins (Money Pouch)"

	DefaultCooldown = 1200 * time.Millisecond
)

// Detector turns successive readings of the gain overlay into credits.
// The overlay stays on screen for several ticks, so a repeated signature
// inside the cooldown window is the same event. Each repeat extends the
// window, so a second identical gain arriving while the first overlay is
// still visible is not credited. Not safe for concurrent use.
type Detector struct {
	cooldown      time.Duration
	lastSig       string
	cooldownUntil time.Time
}

// NewDetector returns a detector with the given cooldown. Non-positive
// values use DefaultCooldown.
func NewDetector(cooldown time.Duration) *Detector {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Detector{cooldown: cooldown}
}

// Signature returns the de-duplication key for a reading.
func Signature(value int) string {
	return "+" + strconv.Itoa(value)
}

// Observe feeds one reading taken at now and returns the amount to credit.
// Unknown or non-positive readings return 0 and leave state untouched.
func (d *Detector) Observe(value int, known bool, now time.Time) int {
	if !known || value <= 0 {
		return 0
	}
	sig := Signature(value)
	if sig == d.lastSig && now.Before(d.cooldownUntil) {
		// same overlay still visible
		d.cooldownUntil = now.Add(d.cooldown)
		return 0
	}
	d.lastSig = sig
	d.cooldownUntil = now.Add(d.cooldown)
	return value
}

// Reset forgets the last signature.
func (d *Detector) Reset() {
	d.lastSig = ""
	d.cooldownUntil = time.Time{}
}

// Cooldown returns the configured window.
func (d *Detector) Cooldown() time.Duration {
	return d.cooldown
}
