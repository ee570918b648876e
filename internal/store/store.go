// Package store implements the gateway's persisted state: dedupe, rate
// limiting, audit, sessions, channel configuration, the credential vault,
// and email poll cursors. Every table lives in one SQLite database opened
// once at startup; a single *sql.DB plus an explicit mutex serialize the
// multi-statement transactions that must be atomic.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps the shared *sql.DB and the write mutex every store method
// takes before running a multi-statement transaction. SQLite's own
// busy_timeout absorbs single-statement contention; the mutex exists for
// the handful of operations (CreateSession, SwitchSession, DeleteChannel)
// that must span more than one table atomically.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if necessary) the SQLite database at path in WAL
// mode and runs every migration block. A migration failure is fatal.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs every table's idempotent CREATE TABLE IF NOT EXISTS /
// CREATE INDEX IF NOT EXISTS statement in sequence. The first statement
// that fails aborts the migration and its error is returned.
func (s *Store) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS message_dedupe (
			message_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			first_seen_ms INTEGER NOT NULL,
			last_seen_ms INTEGER NOT NULL,
			count INTEGER NOT NULL DEFAULT 1,
			PRIMARY KEY (message_id, channel_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_dedupe_last_seen ON message_dedupe(last_seen_ms)`,

		`CREATE TABLE IF NOT EXISTS rate_limit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			user_key TEXT NOT NULL,
			timestamp_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_events_scope ON rate_limit_events(channel_id, user_key, timestamp_ms)`,

		`CREATE TABLE IF NOT EXISTS message_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			user_key TEXT,
			conversation_key TEXT,
			session_id TEXT,
			timestamp_ms INTEGER NOT NULL,
			processing_status TEXT NOT NULL,
			metadata_json TEXT,
			created_at_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_message_audit_user ON message_audit(channel_id, user_key)`,
		`CREATE INDEX IF NOT EXISTS idx_message_audit_session ON message_audit(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_audit_time ON message_audit(timestamp_ms)`,

		`CREATE TABLE IF NOT EXISTS channel_configs (
			channel_id TEXT PRIMARY KEY,
			config_json TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'needs_setup',
			enabled INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			last_heartbeat_ms INTEGER,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS channel_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_channel_events_channel ON channel_events(channel_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS channel_sessions (
			channel_id TEXT NOT NULL,
			user_key TEXT NOT NULL,
			conversation_key TEXT NOT NULL DEFAULT '',
			scope TEXT NOT NULL,
			active_session_id TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (channel_id, user_key, conversation_key)
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			user_key TEXT NOT NULL,
			conversation_key TEXT NOT NULL DEFAULT '',
			scope TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL DEFAULT 'active',
			message_count INTEGER NOT NULL DEFAULT 0,
			metadata_json TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_scope ON sessions(channel_id, user_key, status)`,

		`CREATE TABLE IF NOT EXISTS session_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			action TEXT NOT NULL,
			details TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_history_session ON session_history(session_id)`,

		`CREATE TABLE IF NOT EXISTS email_cursors (
			channel_id TEXT PRIMARY KEY,
			last_poll_time_ms INTEGER NOT NULL,
			last_message_id TEXT,
			updated_at INTEGER NOT NULL
		)`,

		// channel_credentials backs the AES-GCM vault keyed by channel_id.
		`CREATE TABLE IF NOT EXISTS channel_credentials (
			channel_id TEXT PRIMARY KEY,
			encrypted_blob TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		// webhook_replies backs Discord's defer-then-edit flow across restarts.
		`CREATE TABLE IF NOT EXISTS webhook_replies (
			interaction_id TEXT PRIMARY KEY,
			channel_id TEXT NOT NULL,
			webhook_token TEXT NOT NULL,
			expires_at_ms INTEGER NOT NULL
		)`,

		// cleanup bookkeeping for the background GC loop.
		`CREATE TABLE IF NOT EXISTS store_cleanup_state (
			store_name TEXT PRIMARY KEY,
			last_cleanup_ms INTEGER NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
