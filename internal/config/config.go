// Package config holds the tracker service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines the runtime configuration for the tracker service.
type Config struct {
	TickInterval   time.Duration `yaml:"tick_interval"`
	Debounce       int           `yaml:"debounce"`
	MatchThreshold int           `yaml:"match_threshold"`
	GainCooldown   time.Duration `yaml:"gain_cooldown"`

	HTTPAddr       string        `yaml:"http_addr"`
	MetricsAddr    string        `yaml:"metrics_addr"`
	StatusInterval time.Duration `yaml:"status_interval"`

	Storage StorageConfig `yaml:"storage"`
	Capture CaptureConfig `yaml:"capture"`
	OCR     OCRConfig     `yaml:"ocr"`

	EventLogDir string `yaml:"event_log_dir"`
	RecordDir   string `yaml:"record_dir"`

	Log LogConfig `yaml:"log"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"` // json | sqlite
	Path   string `yaml:"path"`
}

type CaptureConfig struct {
	Source     string `yaml:"source"` // screen | replay
	Display    int    `yaml:"display"`
	ReplayPath string `yaml:"replay_path"`
	Loop       bool   `yaml:"loop"`
}

type OCRConfig struct {
	Engine   string `yaml:"engine"` // none | tesseract
	Language string `yaml:"language"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Color bool   `yaml:"color"`
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		TickInterval:   600 * time.Millisecond,
		Debounce:       2,
		MatchThreshold: 8,
		GainCooldown:   1200 * time.Millisecond,
		HTTPAddr:       ":8080",
		MetricsAddr:    "",
		StatusInterval: 2 * time.Second,
		Storage: StorageConfig{
			Driver: "json",
			Path:   "./data/state.json",
		},
		Capture: CaptureConfig{
			Source: "screen",
		},
		OCR: OCRConfig{
			Engine:   "none",
			Language: "eng",
		},
		EventLogDir: "./data/events",
		RecordDir:   "./recordings",
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load overlays the YAML file at path onto Default. Keys missing from the
// file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.Debounce < 1 {
		errs = append(errs, fmt.Errorf("debounce must be at least 1, got %d", c.Debounce))
	}
	if c.MatchThreshold < 1 || c.MatchThreshold > 64 {
		errs = append(errs, fmt.Errorf("match_threshold must be in [1,64], got %d", c.MatchThreshold))
	}
	if c.GainCooldown <= 0 {
		errs = append(errs, fmt.Errorf("gain_cooldown must be positive, got %s", c.GainCooldown))
	}
	if c.StatusInterval <= 0 {
		errs = append(errs, fmt.Errorf("status_interval must be positive, got %s", c.StatusInterval))
	}
	switch c.Storage.Driver {
	case "json", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}
	switch c.Capture.Source {
	case "screen":
	case "replay":
		if c.Capture.ReplayPath == "" {
			errs = append(errs, errors.New("capture.replay_path is required for replay source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown capture source %q", c.Capture.Source))
	}
	switch c.OCR.Engine {
	case "none", "tesseract":
	default:
		errs = append(errs, fmt.Errorf("unknown ocr engine %q", c.OCR.Engine))
	}
	return errors.Join(errs...)
}
