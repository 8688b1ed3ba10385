package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
tick_interval: 250ms
gain_cooldown: 2s
storage:
  driver: sqlite
  path: /tmp/tracker.db
ocr:
  engine: tesseract
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickInterval != 250*time.Millisecond || cfg.GainCooldown != 2*time.Second {
		t.Fatalf("durations = %s, %s", cfg.TickInterval, cfg.GainCooldown)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/tracker.db" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.OCR.Engine != "tesseract" || cfg.OCR.Language != "eng" {
		t.Fatalf("ocr = %+v", cfg.OCR)
	}
	// untouched keys keep defaults
	if cfg.Debounce != 2 || cfg.HTTPAddr != ":8080" || cfg.Capture.Source != "screen" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeFile(t, `
debounce: 0
capture:
  source: replay
`)
	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "debounce") || !strings.Contains(msg, "replay_path") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadMalformed(t *testing.T) {
	path := writeFile(t, "tick_interval: [1, 2\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
