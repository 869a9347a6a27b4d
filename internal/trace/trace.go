// Package trace provides a SQLite-backed journal of bridge activity for
// postmortem debugging. The journal is write-mostly; reads happen out of
// band with the sqlite3 CLI or the Recent helper.
package trace

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // register sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS redraw_batches (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	events   INTEGER NOT NULL,
	flushed  INTEGER NOT NULL,
	created  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sync_ops (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	uri      TEXT NOT NULL,
	dir      TEXT NOT NULL,
	edits    INTEGER NOT NULL,
	tick     INTEGER NOT NULL,
	created  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS faults (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	origin   TEXT NOT NULL,
	detail   TEXT NOT NULL,
	created  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sync_created ON sync_ops(created);
CREATE INDEX IF NOT EXISTS idx_faults_created ON faults(created);
`

// Directions for sync operations.
const (
	DirUpload   = "upload"   // host -> engine
	DirDownload = "download" // engine -> host
)

// Journal records bridge activity. A nil Journal is valid and records
// nothing, so callers never branch on whether tracing is enabled.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates or opens the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("trace: open db: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("trace: pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace: create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database. Safe on a nil receiver.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// RecordBatch notes one decoded redraw batch. No-op on nil receiver.
func (j *Journal) RecordBatch(events int, flushed bool) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	f := 0
	if flushed {
		f = 1
	}
	_, err := j.db.Exec(
		"INSERT INTO redraw_batches (events, flushed, created) VALUES (?, ?, ?)",
		events, f, time.Now().Unix(),
	)
	if err != nil {
		log.Warn().Err(err).Msg("trace: record batch failed")
	}
}

// RecordSync notes one buffer sync operation. No-op on nil receiver.
func (j *Journal) RecordSync(uri, dir string, edits int, tick int64) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		"INSERT INTO sync_ops (uri, dir, edits, tick, created) VALUES (?, ?, ?, ?, ?)",
		uri, dir, edits, tick, time.Now().Unix(),
	)
	if err != nil {
		log.Warn().Err(err).Str("uri", uri).Msg("trace: record sync failed")
	}
}

// RecordFault notes a recoverable failure. No-op on nil receiver.
func (j *Journal) RecordFault(origin, detail string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		"INSERT INTO faults (origin, detail, created) VALUES (?, ?, ?)",
		origin, detail, time.Now().Unix(),
	)
	if err != nil {
		log.Warn().Err(err).Str("origin", origin).Msg("trace: record fault failed")
	}
}

// Fault is one recorded failure.
type Fault struct {
	Origin  string
	Detail  string
	Created time.Time
}

// Recent returns the newest faults, most recent first.
func (j *Journal) Recent(limit int) ([]Fault, error) {
	if j == nil {
		return nil, nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		"SELECT origin, detail, created FROM faults ORDER BY created DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("trace: query faults: %w", err)
	}
	defer rows.Close()

	var out []Fault
	for rows.Next() {
		var f Fault
		var created int64
		if err := rows.Scan(&f.Origin, &f.Detail, &created); err != nil {
			return nil, fmt.Errorf("trace: scan fault: %w", err)
		}
		f.Created = time.Unix(created, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}
