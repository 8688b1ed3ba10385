package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/wythejenkins/rs3-alt1-loot-tracker/internal/ledger"
	"github.com/wythejenkins/rs3-alt1-loot-tracker/pkg/types"
)

// SQLiteStore keeps the state in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS icon_names (
			sig TEXT PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			label TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER,
			loot_json TEXT NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

const (
	keyInvRegion   = "invRegion"
	keyMoneyRegion = "moneyRegion"
)

// Load reads the state. Rows that fail to decode are skipped.
func (s *SQLiteStore) Load(ctx context.Context) (*AppState, error) {
	state := NewAppState()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, err
		}
		var r types.Rect
		if err := json.Unmarshal([]byte(value), &r); err != nil {
			log.Warn("skipping setting %s: %v", key, err)
			continue
		}
		switch key {
		case keyInvRegion:
			state.Settings.InvRegion = &r
		case keyMoneyRegion:
			state.Settings.MoneyRegion = &r
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT sig, name FROM icon_names`)
	if err != nil {
		return nil, fmt.Errorf("load icon names: %w", err)
	}
	for rows.Next() {
		var sig, name string
		if err := rows.Scan(&sig, &name); err != nil {
			rows.Close()
			return nil, err
		}
		state.IconNames[sig] = name
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT id, label, started_at, ended_at, loot_json FROM sessions ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load sessions: %w", err)
	}
	for rows.Next() {
		var (
			sess     Session
			started  int64
			ended    sql.NullInt64
			lootJSON string
		)
		if err := rows.Scan(&sess.ID, &sess.Label, &started, &ended, &lootJSON); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal([]byte(lootJSON), &sess.Loot); err != nil {
			log.Warn("skipping session %s: %v", sess.ID, err)
			continue
		}
		sess.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			sess.EndedAt = &t
		}
		state.Sessions = append(state.Sessions, sess)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	state.Normalize()
	return state, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	return errors.Join(err, rows.Close())
}

// Save replaces the stored state in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, state *AppState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM settings`, `DELETE FROM icon_names`, `DELETE FROM sessions`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("clear: %w", err)
		}
	}

	regions := map[string]*types.Rect{
		keyInvRegion:   state.Settings.InvRegion,
		keyMoneyRegion: state.Settings.MoneyRegion,
	}
	for key, r := range regions {
		if r == nil {
			continue
		}
		value, err := json.Marshal(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO settings (key, value) VALUES (?, ?)`, key, string(value)); err != nil {
			return fmt.Errorf("save setting %s: %w", key, err)
		}
	}

	for sig, name := range state.IconNames {
		if _, err := tx.ExecContext(ctx, `INSERT INTO icon_names (sig, name) VALUES (?, ?)`, sig, name); err != nil {
			return fmt.Errorf("save icon name %s: %w", sig, err)
		}
	}

	for i, sess := range state.Sessions {
		loot := sess.Loot
		if loot == nil {
			loot = []ledger.Entry{}
		}
		lootJSON, err := json.Marshal(loot)
		if err != nil {
			return err
		}
		var ended sql.NullInt64
		if sess.EndedAt != nil {
			ended = sql.NullInt64{Int64: sess.EndedAt.UnixMilli(), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sessions (id, position, label, started_at, ended_at, loot_json) VALUES (?, ?, ?, ?, ?, ?)`,
			sess.ID, i, sess.Label, sess.StartedAt.UnixMilli(), ended, string(lootJSON))
		if err != nil {
			return fmt.Errorf("save session %s: %w", sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
