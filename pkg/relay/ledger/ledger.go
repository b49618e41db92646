// Copyright 2024-2026 Aiku AI

// Package ledger tracks already-forwarded message IDs so redelivered or
// retried events are never forwarded twice. Entries are persisted in a
// SQLite database; if the database is unavailable at any point the ledger
// permanently degrades to an in-memory set for the rest of the process.
// The in-memory set is also kept as a mirror while the database is live,
// so suppression within a single process never depends on the store.
package ledger

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const createTable = `
CREATE TABLE IF NOT EXISTS forwarded_messages (
	message_id INTEGER PRIMARY KEY,
	timestamp TEXT NOT NULL
)`

// Ledger is safe for concurrent use by multiple forwarders. A single
// mutex serializes both set and store access, so at most one write
// transaction runs at a time.
type Ledger struct {
	mu     sync.Mutex
	db     *sql.DB
	dbLive bool
	mem    map[int64]struct{}
	log    zerolog.Logger
}

// New opens (creating if needed) the SQLite database at path. Open or
// schema errors are not fatal: the ledger logs a warning and runs
// memory-only.
func New(path string, log zerolog.Logger) *Ledger {
	l := &Ledger{
		mem: make(map[int64]struct{}),
		log: log,
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to open ledger database, using in-memory tracking")
		return l
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(createTable); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to initialize ledger database, using in-memory tracking")
		_ = db.Close()
		return l
	}
	l.db = db
	l.dbLive = true
	log.Info().Str("path", path).Msg("Ledger database initialized")
	return l
}

// IsForwarded reports whether id has been recorded. It never returns an
// error: a store failure downgrades the ledger to memory-only and the
// answer comes from the in-memory set.
func (l *Ledger) IsForwarded(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dbLive {
		_, ok := l.mem[id]
		return ok
	}
	var one int
	err := l.db.QueryRow("SELECT 1 FROM forwarded_messages WHERE message_id = ?", id).Scan(&one)
	switch err {
	case nil:
		return true
	case sql.ErrNoRows:
		return false
	default:
		l.downgrade("query", err)
		_, ok := l.mem[id]
		return ok
	}
}

// MarkForwarded records id. The in-memory mirror is always updated; the
// store upsert is idempotent and a store failure downgrades silently.
func (l *Ledger) MarkForwarded(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mem[id] = struct{}{}
	if !l.dbLive {
		return
	}
	_, err := l.db.Exec(
		"INSERT OR REPLACE INTO forwarded_messages (message_id, timestamp) VALUES (?, ?)",
		id, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		l.downgrade("upsert", err)
	}
}

// Reset clears all recorded IDs so a feed's backlog can be reprocessed.
// It returns true as long as the in-memory set was cleared, even if the
// store delete failed.
func (l *Ledger) Reset() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cleared := len(l.mem)
	l.mem = make(map[int64]struct{})
	if l.dbLive {
		if _, err := l.db.Exec("DELETE FROM forwarded_messages"); err != nil {
			l.downgrade("reset", err)
		}
	}
	l.log.Info().Int("memory_cleared", cleared).Msg("Ledger reset")
	return true
}

// PruneOlderThan deletes entries recorded more than the given number of
// days ago. Best-effort: errors are logged, never returned.
func (l *Ledger) PruneOlderThan(days int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dbLive {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -days).Format(time.RFC3339)
	res, err := l.db.Exec("DELETE FROM forwarded_messages WHERE timestamp < ?", cutoff)
	if err != nil {
		l.log.Warn().Err(err).Msg("Failed to prune ledger")
		return
	}
	if deleted, err := res.RowsAffected(); err == nil && deleted > 0 {
		l.log.Info().Int64("deleted", deleted).Int("days", days).Msg("Pruned old ledger entries")
	}
}

// Size returns the number of IDs in the in-memory set.
func (l *Ledger) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.mem)
}

// Close releases the database handle. The ledger remains usable in
// memory-only mode afterwards.
func (l *Ledger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		_ = l.db.Close()
		l.db = nil
		l.dbLive = false
	}
}

// downgrade flips the ledger to memory-only for the rest of the process.
// The store is a durability optimization, not a correctness requirement.
func (l *Ledger) downgrade(op string, err error) {
	l.log.Error().Err(err).Str("op", op).Msg("Ledger store failure, switching to in-memory tracking")
	l.dbLive = false
	if l.db != nil {
		_ = l.db.Close()
		l.db = nil
	}
}
