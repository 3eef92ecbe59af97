// Package journal persists authority record changes to sqlite for audit and
// operator debugging. It is strictly an observer of the coordinator, wired
// like any other subscriber; the coordination protocol itself has no
// persistence.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"broadcast-director/internal/authority"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS authority_changes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT NOT NULL,
	slot        TEXT NOT NULL,
	session_id  TEXT NOT NULL,
	owner_id    TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	active      INTEGER NOT NULL,
	replayed    INTEGER NOT NULL,
	description TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_authority_changes_slot ON authority_changes(slot);
`

// Entry is one persisted record change.
type Entry struct {
	ID          int64     `json:"id"`
	At          time.Time `json:"at"`
	Slot        string    `json:"slot"`
	SessionID   string    `json:"session_id"`
	OwnerID     string    `json:"owner_id"`
	SourceID    string    `json:"source_id"`
	Active      bool      `json:"active"`
	Replayed    bool      `json:"replayed"`
	Description string    `json:"description"`
}

// Journal is an append-only sqlite log of authority changes.
type Journal struct {
	db    *sql.DB
	clock func() time.Time
}

// Open opens (or creates) the journal database at path and ensures the
// schema exists.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db, clock: time.Now}, nil
}

// Append persists one record change.
func (j *Journal) Append(ctx context.Context, c authority.Change) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO authority_changes (ts, slot, session_id, owner_id, source_id, active, replayed, description)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.clock().UTC().Format(time.RFC3339Nano),
		string(c.Slot),
		c.Current.SessionID,
		c.Current.OwnerID,
		c.Current.SourceID,
		boolInt(c.Current.Active),
		boolInt(c.Replayed),
		c.Description,
	)
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, ts, slot, session_id, owner_id, source_id, active, replayed, description
		 FROM authority_changes ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var active, replayed int
		if err := rows.Scan(&e.ID, &ts, &e.Slot, &e.SessionID, &e.OwnerID, &e.SourceID, &active, &replayed, &e.Description); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, ts)
		e.Active = active != 0
		e.Replayed = replayed != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
