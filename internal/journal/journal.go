// Package journal persists every answered frame to SQLite so a simulator
// session can be inspected after the fact.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/v4link/internal/link"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

var ErrClosed = errors.New("journal: closed")

const schema = `CREATE TABLE IF NOT EXISTS frames (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	at       INTEGER NOT NULL,
	outcome  TEXT NOT NULL,
	command  TEXT NOT NULL,
	status   TEXT NOT NULL,
	request  BLOB,
	reply    BLOB,
	rx_bytes INTEGER NOT NULL,
	tx_bytes INTEGER NOT NULL,
	words    INTEGER NOT NULL
)`

// Entry is one journaled frame.
type Entry struct {
	ID      int64     `json:"id"`
	At      time.Time `json:"at"`
	Outcome string    `json:"outcome"`
	Command string    `json:"command"`
	Status  string    `json:"status"`
	Request []byte    `json:"request,omitempty"`
	Reply   []byte    `json:"reply,omitempty"`
	RxBytes int       `json:"rx_bytes"`
	TxBytes int       `json:"tx_bytes"`
	Words   int       `json:"words_registered"`
}

// Journal methods other than Close may be called concurrently.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the journal at path. ":memory:" keeps it in memory.
func Open(path string) (*Journal, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("journal: path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("journal: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create table: %w", err)
	}
	return &Journal{db: db, now: time.Now}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// FromRecord converts a link record, copying its buffers.
func FromRecord(rec link.Record, at time.Time) Entry {
	cmd := rec.Command.String()
	if rec.Outcome == link.OutcomeOverflow {
		cmd = "none"
	}
	return Entry{
		At:      at,
		Outcome: string(rec.Outcome),
		Command: cmd,
		Status:  rec.Status.String(),
		Request: append([]byte(nil), rec.Payload...),
		Reply:   append([]byte(nil), rec.Reply...),
		RxBytes: rec.RxBytes,
		TxBytes: rec.TxBytes,
		Words:   len(rec.Registered),
	}
}

// Append stores e and returns its id.
func (j *Journal) Append(ctx context.Context, e Entry) (int64, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO frames (at, outcome, command, status, request, reply, rx_bytes, tx_bytes, words)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.At.UnixNano(), e.Outcome, e.Command, e.Status, e.Request, e.Reply, e.RxBytes, e.TxBytes, e.Words,
	)
	if err != nil {
		return 0, fmt.Errorf("journal: insert: %w", err)
	}
	return res.LastInsertId()
}

// Observe implements link.Observer. Failures are logged, never returned to
// the link.
func (j *Journal) Observe(rec link.Record) {
	if _, err := j.Append(context.Background(), FromRecord(rec, j.now())); err != nil {
		log.Warn().Msgf("journal.Journal.Observe err=%v", err)
	}
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, outcome, command, status, request, reply, rx_bytes, tx_bytes, words
		 FROM frames ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var at int64
		if err := rows.Scan(&e.ID, &at, &e.Outcome, &e.Command, &e.Status, &e.Request, &e.Reply, &e.RxBytes, &e.TxBytes, &e.Words); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.At = time.Unix(0, at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of journaled frames.
func (j *Journal) Count(ctx context.Context) (int, error) {
	if j.db == nil {
		return 0, ErrClosed
	}
	var n int
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM frames`).Scan(&n); err != nil {
		return 0, fmt.Errorf("journal: count: %w", err)
	}
	return n, nil
}
