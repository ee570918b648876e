package store

import (
	"encoding/json"
	"fmt"

	"github.com/kafgate/kafgate/internal/ids"
)

// Direction distinguishes inbound audit rows from outbound ones.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// AuditEntry is a single audit row. Only metadata is stored — never message
// bodies, attachments, or the raw provider payload.
type AuditEntry struct {
	MessageID        string
	Direction        Direction
	ChannelID        string
	UserKey          string
	ConversationKey  string
	SessionID        string
	TimestampMs      int64
	ProcessingStatus string
	Metadata         map[string]string
}

// LogEntry inserts an audit row and returns its id.
func (s *Store) LogEntry(e AuditEntry) (int64, error) {
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return 0, fmt.Errorf("store: marshal audit metadata: %w", err)
	}
	now := ids.NowMs()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO message_audit
		   (message_id, direction, channel_id, user_key, conversation_key, session_id,
		    timestamp_ms, processing_status, metadata_json, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.MessageID, string(e.Direction), e.ChannelID, e.UserKey, e.ConversationKey, e.SessionID,
		e.TimestampMs, e.ProcessingStatus, string(metaJSON), now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: audit insert: %w", err)
	}
	return res.LastInsertId()
}

// LogInbound is a convenience wrapper for recording an inbound audit entry.
func (s *Store) LogInbound(channelID, userKey, conversationKey, messageID, status string, meta map[string]string) (int64, error) {
	return s.LogEntry(AuditEntry{
		MessageID:        messageID,
		Direction:        DirectionInbound,
		ChannelID:        channelID,
		UserKey:          userKey,
		ConversationKey:  conversationKey,
		TimestampMs:      ids.NowMs(),
		ProcessingStatus: status,
		Metadata:         meta,
	})
}

// LogOutbound is a convenience wrapper for recording an outbound audit entry.
func (s *Store) LogOutbound(channelID, userKey, conversationKey, messageID, status string, meta map[string]string) (int64, error) {
	return s.LogEntry(AuditEntry{
		MessageID:        messageID,
		Direction:        DirectionOutbound,
		ChannelID:        channelID,
		UserKey:          userKey,
		ConversationKey:  conversationKey,
		TimestampMs:      ids.NowMs(),
		ProcessingStatus: status,
		Metadata:         meta,
	})
}

// QueryByUser returns recent audit rows for a (channelID, userKey) scope,
// most recent first, bounded by limit.
func (s *Store) QueryByUser(channelID, userKey string, limit int) ([]AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT message_id, direction, channel_id, user_key, conversation_key,
		        COALESCE(session_id, ''), timestamp_ms, processing_status
		 FROM message_audit WHERE channel_id = ? AND user_key = ?
		 ORDER BY id DESC LIMIT ?`,
		channelID, userKey, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: audit query by user: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// QueryBySession returns recent audit rows for a session, most recent first.
func (s *Store) QueryBySession(sessionID string, limit int) ([]AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT message_id, direction, channel_id, user_key, conversation_key,
		        session_id, timestamp_ms, processing_status
		 FROM message_audit WHERE session_id = ?
		 ORDER BY id DESC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: audit query by session: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

// QueryByTimeRange returns audit rows with timestamp_ms in [fromMs, toMs].
func (s *Store) QueryByTimeRange(fromMs, toMs int64) ([]AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT message_id, direction, channel_id, user_key, conversation_key,
		        COALESCE(session_id, ''), timestamp_ms, processing_status
		 FROM message_audit WHERE timestamp_ms BETWEEN ? AND ?
		 ORDER BY timestamp_ms ASC`,
		fromMs, toMs,
	)
	if err != nil {
		return nil, fmt.Errorf("store: audit query by time range: %w", err)
	}
	defer rows.Close()
	return scanAuditRows(rows)
}

func scanAuditRows(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]AuditEntry, error) {
	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.MessageID, &e.Direction, &e.ChannelID, &e.UserKey,
			&e.ConversationKey, &e.SessionID, &e.TimestampMs, &e.ProcessingStatus); err != nil {
			return nil, fmt.Errorf("store: scan audit row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CleanupAudit removes rows older than retentionMs (30 days by default).
func (s *Store) CleanupAudit(retentionMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := ids.NowMs() - retentionMs
	res, err := s.db.Exec(`DELETE FROM message_audit WHERE timestamp_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: audit cleanup: %w", err)
	}
	return res.RowsAffected()
}
