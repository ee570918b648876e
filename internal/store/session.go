package store

import (
	"database/sql"
	"fmt"

	"github.com/kafgate/kafgate/internal/ids"
)

// SessionStatus enumerates the lifecycle states of a session.
type SessionStatus string

const (
	SessionActive   SessionStatus = "active"
	SessionInactive SessionStatus = "inactive"
	SessionArchived SessionStatus = "archived"
)

// Session mirrors one row of the sessions table.
type Session struct {
	SessionID       string
	ChannelID       string
	UserKey         string
	ConversationKey string
	Scope           string
	Title           string
	Status          SessionStatus
	MessageCount    int
	CreatedAt       int64
	UpdatedAt       int64
}

// CreateSession inserts a new session, marks it active for the scope key,
// and appends a "created" history entry — all in one transaction.
func (s *Store) CreateSession(channelID, userKey, conversationKey, scope, title string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("store: begin create session: %w", err)
	}
	defer tx.Rollback()

	now := ids.NowMs()
	sess := &Session{
		SessionID:       ids.NewSessionID(),
		ChannelID:       channelID,
		UserKey:         userKey,
		ConversationKey: conversationKey,
		Scope:           scope,
		Title:           title,
		Status:          SessionActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if _, err := tx.Exec(
		`INSERT INTO sessions (session_id, channel_id, user_key, conversation_key, scope,
		    title, status, message_count, metadata_json, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, '{}', ?, ?)`,
		sess.SessionID, channelID, userKey, conversationKey, scope, title, string(SessionActive), now, now,
	); err != nil {
		return nil, fmt.Errorf("store: insert session: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO channel_sessions (channel_id, user_key, conversation_key, scope, active_session_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(channel_id, user_key, conversation_key) DO UPDATE SET
		   active_session_id = excluded.active_session_id,
		   updated_at = excluded.updated_at`,
		channelID, userKey, conversationKey, scope, sess.SessionID, now, now,
	); err != nil {
		return nil, fmt.Errorf("store: upsert channel_sessions: %w", err)
	}

	if _, err := tx.Exec(
		`INSERT INTO session_history (session_id, action, details, created_at) VALUES (?, 'created', '', ?)`,
		sess.SessionID, now,
	); err != nil {
		return nil, fmt.Errorf("store: insert session history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit create session: %w", err)
	}
	return sess, nil
}

// ActiveSession returns the currently active session for a scope key, or
// nil if none is active.
func (s *Store) ActiveSession(channelID, userKey, conversationKey string) (*Session, error) {
	var activeID sql.NullString
	err := s.db.QueryRow(
		`SELECT active_session_id FROM channel_sessions WHERE channel_id = ? AND user_key = ? AND conversation_key = ?`,
		channelID, userKey, conversationKey,
	).Scan(&activeID)
	if err == sql.ErrNoRows || !activeID.Valid || activeID.String == "" {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup active session: %w", err)
	}
	return s.GetSession(activeID.String)
}

// GetSession fetches a session by id, returning (nil, nil) if not found.
func (s *Store) GetSession(sessionID string) (*Session, error) {
	var sess Session
	var status string
	err := s.db.QueryRow(
		`SELECT session_id, channel_id, user_key, conversation_key, scope,
		        COALESCE(title, ''), status, message_count, created_at, updated_at
		 FROM sessions WHERE session_id = ?`,
		sessionID,
	).Scan(&sess.SessionID, &sess.ChannelID, &sess.UserKey, &sess.ConversationKey, &sess.Scope,
		&sess.Title, &status, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.Status = SessionStatus(status)
	return &sess, nil
}

// SwitchSession verifies that targetID belongs to (channelID, userKey) and,
// if so, atomically makes it the active session for the scope key, logging
// both an "activated" and a "deactivated" history entry.
func (s *Store) SwitchSession(channelID, userKey, conversationKey, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin switch session: %w", err)
	}
	defer tx.Rollback()

	var owner, ownerUser string
	err = tx.QueryRow(`SELECT channel_id, user_key FROM sessions WHERE session_id = ?`, targetID).
		Scan(&owner, &ownerUser)
	if err == sql.ErrNoRows {
		return fmt.Errorf("store: session %s not found", targetID)
	}
	if err != nil {
		return fmt.Errorf("store: lookup session owner: %w", err)
	}
	if owner != channelID || ownerUser != userKey {
		return fmt.Errorf("store: session %s does not belong to this scope", targetID)
	}

	now := ids.NowMs()
	var prevActive sql.NullString
	_ = tx.QueryRow(
		`SELECT active_session_id FROM channel_sessions WHERE channel_id = ? AND user_key = ? AND conversation_key = ?`,
		channelID, userKey, conversationKey,
	).Scan(&prevActive)

	if _, err := tx.Exec(
		`INSERT INTO channel_sessions (channel_id, user_key, conversation_key, scope, active_session_id, created_at, updated_at)
		 VALUES (?, ?, ?, (SELECT scope FROM sessions WHERE session_id = ?), ?, ?, ?)
		 ON CONFLICT(channel_id, user_key, conversation_key) DO UPDATE SET
		   active_session_id = excluded.active_session_id,
		   updated_at = excluded.updated_at`,
		channelID, userKey, conversationKey, targetID, targetID, now, now,
	); err != nil {
		return fmt.Errorf("store: switch active session: %w", err)
	}

	if prevActive.Valid && prevActive.String != "" && prevActive.String != targetID {
		if _, err := tx.Exec(
			`INSERT INTO session_history (session_id, action, details, created_at) VALUES (?, 'deactivated', '', ?)`,
			prevActive.String, now,
		); err != nil {
			return fmt.Errorf("store: log deactivated: %w", err)
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO session_history (session_id, action, details, created_at) VALUES (?, 'activated', '', ?)`,
		targetID, now,
	); err != nil {
		return fmt.Errorf("store: log activated: %w", err)
	}

	return tx.Commit()
}

// ArchiveSession sets status=archived, clears it as the active session for
// its scope key if it was active, and logs an "archived" history entry.
func (s *Store) ArchiveSession(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ids.NowMs()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin archive session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`UPDATE sessions SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(SessionArchived), now, sessionID,
	); err != nil {
		return fmt.Errorf("store: archive session: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE channel_sessions SET active_session_id = NULL, updated_at = ?
		 WHERE active_session_id = ?`,
		now, sessionID,
	); err != nil {
		return fmt.Errorf("store: clear active pointer: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO session_history (session_id, action, details, created_at) VALUES (?, 'archived', '', ?)`,
		sessionID, now,
	); err != nil {
		return fmt.Errorf("store: log archived: %w", err)
	}
	return tx.Commit()
}

// IncrementMessageCount is the hot-path counter bump for a session.
func (s *Store) IncrementMessageCount(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE sessions SET message_count = message_count + 1, updated_at = ? WHERE session_id = ?`,
		ids.NowMs(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("store: increment message count: %w", err)
	}
	return nil
}

// ListSessions returns the most recent N sessions for a (channelID, userKey)
// scope, most recent first.
func (s *Store) ListSessions(channelID, userKey string, limit int) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT session_id, channel_id, user_key, conversation_key, scope,
		        COALESCE(title, ''), status, message_count, created_at, updated_at
		 FROM sessions WHERE channel_id = ? AND user_key = ?
		 ORDER BY updated_at DESC LIMIT ?`,
		channelID, userKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var status string
		if err := rows.Scan(&sess.SessionID, &sess.ChannelID, &sess.UserKey, &sess.ConversationKey,
			&sess.Scope, &sess.Title, &status, &sess.MessageCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan session row: %w", err)
		}
		sess.Status = SessionStatus(status)
		out = append(out, sess)
	}
	return out, rows.Err()
}
