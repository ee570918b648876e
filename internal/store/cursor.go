package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kafgate/kafgate/internal/ids"
)

// EmailCursor tracks the last poll position for one email channel.
type EmailCursor struct {
	ChannelID      string
	LastPollTimeMs int64
	LastMessageID  string
}

// GetCursor returns the stored cursor for channelID, defaulting to
// now−24h with no last message id if the channel has never polled.
func (s *Store) GetCursor(channelID string) (EmailCursor, error) {
	var cur EmailCursor
	cur.ChannelID = channelID
	var lastMessageID sql.NullString
	err := s.db.QueryRow(
		`SELECT last_poll_time_ms, last_message_id FROM email_cursors WHERE channel_id = ?`,
		channelID,
	).Scan(&cur.LastPollTimeMs, &lastMessageID)
	if err == sql.ErrNoRows {
		cur.LastPollTimeMs = ids.ToMs(time.Now().UTC().Add(-24 * time.Hour))
		return cur, nil
	}
	if err != nil {
		return cur, fmt.Errorf("store: get cursor: %w", err)
	}
	cur.LastMessageID = lastMessageID.String
	return cur, nil
}

// SaveCursor upserts the poll cursor for a channel.
func (s *Store) SaveCursor(channelID string, lastPollTimeMs int64, lastMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO email_cursors (channel_id, last_poll_time_ms, last_message_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   last_poll_time_ms = excluded.last_poll_time_ms,
		   last_message_id = excluded.last_message_id,
		   updated_at = excluded.updated_at`,
		channelID, lastPollTimeMs, nullableString(lastMessageID), ids.NowMs(),
	); err != nil {
		return fmt.Errorf("store: save cursor: %w", err)
	}
	return nil
}
