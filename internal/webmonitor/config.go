package webmonitor

import (
	"time"
)

// Config defines the runtime configuration for the web monitor server.
type Config struct {
	Addr              string
	StatusInterval    time.Duration
	KeepaliveInterval time.Duration
	OverlayQuality    int
}

// DefaultConfig returns the settings used by cmd/server when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		StatusInterval:    2 * time.Second,
		KeepaliveInterval: 30 * time.Second,
		OverlayQuality:    80,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Addr == "" {
		c.Addr = def.Addr
	}
	if c.StatusInterval <= 0 {
		c.StatusInterval = def.StatusInterval
	}
	if c.KeepaliveInterval <= 0 {
		c.KeepaliveInterval = def.KeepaliveInterval
	}
	if c.OverlayQuality <= 0 || c.OverlayQuality > 100 {
		c.OverlayQuality = def.OverlayQuality
	}
	return c
}
