// Package cdrsqlite is an example external collaborator: a best-effort,
// non-authoritative call.cdr writer backed by modernc.org/sqlite. It
// never blocks or fails call processing over a write error — spec.md's
// CDR persistence Non-goal means no component in this repository may
// treat this store as the record of truth.
//
// Uses plain database/sql over the pure-Go sqlite driver, an explicit
// schema applied once, WAL mode plus a busy timeout for concurrent
// access.
package cdrsqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"tallhat.dev/tonal/internal/dispatch"
	"tallhat.dev/tonal/internal/engine"
	"tallhat.dev/tonal/internal/wire"
)

const schema = `CREATE TABLE IF NOT EXISTS cdr (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	billid     TEXT NOT NULL,
	chan       TEXT NOT NULL DEFAULT '',
	direction  TEXT NOT NULL DEFAULT '',
	operation  TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// Plugin writes one row per call.cdr message (operation ∈
// {initialize,finalize,combined}, billid, chan, direction — spec.md §6
// standard message-kind table).
type Plugin struct {
	dsn string
	db  *sql.DB
	eng *engine.Engine
	h   *dispatch.Handler
}

// New creates a Plugin that will open dsn on Initialize.
func New(dsn string) *Plugin {
	return &Plugin{dsn: dsn}
}

// Name implements engine.Plugin.
func (p *Plugin) Name() string { return "cdrsqlite" }

// Initialize opens the database (once; idempotent on reload) and
// installs the call.cdr handler.
func (p *Plugin) Initialize(e *engine.Engine) error {
	p.eng = e
	if p.db == nil {
		db, err := sql.Open("sqlite", p.dsn)
		if err != nil {
			return fmt.Errorf("cdrsqlite: open %s: %w", p.dsn, err)
		}
		db.SetMaxOpenConns(1)
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			e.Log().Warnf("cdrsqlite: WAL mode: %v (non-fatal)", err)
		}
		if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
			e.Log().Warnf("cdrsqlite: busy_timeout: %v (non-fatal)", err)
		}
		if _, err := db.Exec(schema); err != nil {
			db.Close()
			return fmt.Errorf("cdrsqlite: migrate: %w", err)
		}
		p.db = db
	}
	if p.h == nil {
		p.h = dispatch.NewHandler("call.cdr", 0, p.handle)
	}
	e.Dispatcher.Install(p.h)
	return nil
}

// Unload closes the database and removes the handler. Always reports
// success: a CDR writer has nothing worth vetoing shutdown over.
func (p *Plugin) Unload(now bool) bool {
	if p.eng != nil && p.h != nil {
		p.eng.Dispatcher.Uninstall(p.h)
	}
	if p.db != nil {
		_ = p.db.Close()
		p.db = nil
	}
	return true
}

func (p *Plugin) handle(msg *wire.Message) bool {
	billid := msg.GetValue("billid", "")
	if billid == "" {
		return false
	}
	_, err := p.db.Exec(
		`INSERT INTO cdr(billid, chan, direction, operation, created_at) VALUES (?, ?, ?, ?, ?)`,
		billid,
		msg.GetValue("chan", ""),
		msg.GetValue("direction", ""),
		msg.GetValue("operation", ""),
		msg.CreatedUs()/1_000_000,
	)
	if err != nil {
		p.eng.Log().Warnf("cdrsqlite: insert billid=%s: %v", billid, err)
		return false
	}
	return true
}

// Count returns the number of CDR rows recorded so far, for tests.
func (p *Plugin) Count() (int, error) {
	var n int
	err := p.db.QueryRow(`SELECT COUNT(*) FROM cdr`).Scan(&n)
	return n, err
}
