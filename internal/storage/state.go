// Package storage persists calibration, icon names, and finished sessions.
package storage

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ledger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/logger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

var log = logger.For("Store")

// Settings holds calibration. Nil regions are uncalibrated.
type Settings struct {
	InvRegion   *types.Rect `json:"invRegion"`
	MoneyRegion *types.Rect `json:"moneyRegion"`
}

// Session is one run. EndedAt is nil while the run is active.
type Session struct {
	ID        string         `json:"id"`
	Label     string         `json:"label"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt"`
	Loot      []ledger.Entry `json:"loot"`
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Loot = slices.Clone(s.Loot)
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// AppState is everything the tracker persists. Active is never written.
type AppState struct {
	Settings  Settings          `json:"settings"`
	IconNames map[string]string `json:"iconNames"`
	Sessions  []Session         `json:"sessions"` // most recent first
	Active    *Session          `json:"-"`
}

// NewAppState returns an empty state.
func NewAppState() *AppState {
	return &AppState{
		IconNames: make(map[string]string),
		Sessions:  []Session{},
	}
}

// Normalize fills missing collections and drops invalid regions. Loading
// a partially written or older state file goes through here.
func (s *AppState) Normalize() {
	if s.IconNames == nil {
		s.IconNames = make(map[string]string)
	}
	if s.Sessions == nil {
		s.Sessions = []Session{}
	}
	if s.Settings.InvRegion != nil && !s.Settings.InvRegion.Valid() {
		s.Settings.InvRegion = nil
	}
	if s.Settings.MoneyRegion != nil && !s.Settings.MoneyRegion.Valid() {
		s.Settings.MoneyRegion = nil
	}
	s.Active = nil
}

// Clone returns a deep copy.
func (s *AppState) Clone() *AppState {
	c := &AppState{
		Settings:  Settings{InvRegion: cloneRect(s.Settings.InvRegion), MoneyRegion: cloneRect(s.Settings.MoneyRegion)},
		IconNames: maps.Clone(s.IconNames),
		Sessions:  make([]Session, len(s.Sessions)),
		Active:    s.Active.Clone(),
	}
	if c.IconNames == nil {
		c.IconNames = make(map[string]string)
	}
	for i := range s.Sessions {
		c.Sessions[i] = *s.Sessions[i].Clone()
	}
	return c
}

func cloneRect(r *types.Rect) *types.Rect {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// Store loads and saves AppState.
type Store interface {
	Load(ctx context.Context) (*AppState, error)
	Save(ctx context.Context, state *AppState) error
	Close() error
}

// Open returns the store for driver ("json" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", "json":
		return NewFileStore(path), nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
