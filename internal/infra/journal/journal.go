// Package journal persists a diagnostic history of peer status
// transitions to SQLite. It is not the membership table: the engine's
// in-memory peer map is the only source of truth for current status,
// and nothing here is read back into the engine on startup. A journal
// exists purely so an operator can answer "when did peer 7 go down"
// after the fact; it does not record which node reported a transition.
package journal

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Migrations returns the schema migration statements, applied in order
// and guarded with IF NOT EXISTS so Open is idempotent across restarts.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS peer_transitions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			peer_id     INTEGER NOT NULL,
			from_status TEXT NOT NULL,
			to_status   TEXT NOT NULL,
			sequence    INTEGER NOT NULL,
			observed_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_peer_transitions_peer ON peer_transitions(peer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_peer_transitions_observed ON peer_transitions(observed_at)`,
	}
}

// Journal wraps a SQLite database holding the transition history.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if absent) the SQLite database at path and
// applies any pending migrations. Pass ":memory:" for an ephemeral
// journal, e.g. in tests or a node with no configured data directory.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	for _, stmt := range Migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: migrate: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordTransition appends one row for a peer moving from one status to
// another at the given sequence number. Errors are returned rather than
// swallowed; callers that treat the journal as best-effort (e.g. the
// engine's status-change hook) may choose to log and continue.
func (j *Journal) RecordTransition(peerID int, from, to string, sequence int) error {
	_, err := j.db.Exec(
		`INSERT INTO peer_transitions (peer_id, from_status, to_status, sequence) VALUES (?, ?, ?, ?)`,
		peerID, from, to, sequence,
	)
	if err != nil {
		return fmt.Errorf("journal: record transition: %w", err)
	}
	return nil
}

// Transition is one historical row as returned by History.
type Transition struct {
	PeerID     int
	From       string
	To         string
	Sequence   int
	ObservedAt string
}

// History returns the most recent transitions for peerID, newest first,
// capped at limit rows.
func (j *Journal) History(peerID int, limit int) ([]Transition, error) {
	rows, err := j.db.Query(
		`SELECT peer_id, from_status, to_status, sequence, observed_at
		 FROM peer_transitions WHERE peer_id = ? ORDER BY id DESC LIMIT ?`,
		peerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: history: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		if err := rows.Scan(&t.PeerID, &t.From, &t.To, &t.Sequence, &t.ObservedAt); err != nil {
			return nil, fmt.Errorf("journal: history scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
