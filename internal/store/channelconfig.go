package store

import (
	"database/sql"
	"fmt"

	"github.com/kafgate/kafgate/internal/ids"
)

// ChannelConfigRow mirrors one row of the channel_configs table.
type ChannelConfigRow struct {
	ChannelID       string
	ConfigJSON      string
	Status          string
	Enabled         bool
	LastError       string
	LastHeartbeatMs int64
	CreatedAt       int64
	UpdatedAt       int64
}

// SaveConfig upserts a channel's configuration, resetting status to
// needs_setup, and writes an audit event.
func (s *Store) SaveConfig(channelID, configJSON string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ids.NowMs()
	if _, err := s.db.Exec(
		`INSERT INTO channel_configs (channel_id, config_json, status, enabled, created_at, updated_at)
		 VALUES (?, ?, 'needs_setup', 0, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   config_json = excluded.config_json,
		   status = 'needs_setup',
		   updated_at = excluded.updated_at`,
		channelID, configJSON, now, now,
	); err != nil {
		return fmt.Errorf("store: save config: %w", err)
	}
	return s.logEventLocked(channelID, "config_saved", "")
}

// SetEnabled flips a channel's status to enabled or disabled.
func (s *Store) SetEnabled(channelID string, enable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "disabled"
	if enable {
		status = "enabled"
	}
	if _, err := s.db.Exec(
		`UPDATE channel_configs SET enabled = ?, status = ?, updated_at = ? WHERE channel_id = ?`,
		enable, status, ids.NowMs(), channelID,
	); err != nil {
		return fmt.Errorf("store: set enabled: %w", err)
	}
	return s.logEventLocked(channelID, "enabled_changed", status)
}

// UpdateHeartbeat bumps a channel's last_heartbeat_ms, optionally clearing
// or recording a last_error.
func (s *Store) UpdateHeartbeat(channelID string, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ids.NowMs()
	if _, err := s.db.Exec(
		`UPDATE channel_configs SET last_heartbeat_ms = ?, last_error = ?, updated_at = ? WHERE channel_id = ?`,
		now, nullableString(lastError), now, channelID,
	); err != nil {
		return fmt.Errorf("store: update heartbeat: %w", err)
	}
	return nil
}

// LogEvent appends a channel_events row for health/diagnostic tracking.
func (s *Store) LogEvent(channelID, action, details string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logEventLocked(channelID, action, details)
}

func (s *Store) logEventLocked(channelID, action, details string) error {
	if _, err := s.db.Exec(
		`INSERT INTO channel_events (channel_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		channelID, action, details, ids.NowMs(),
	); err != nil {
		return fmt.Errorf("store: log channel event: %w", err)
	}
	return nil
}

// GetRecentEvents returns the most recent N events for a channel.
func (s *Store) GetRecentEvents(channelID string, limit int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT action || ': ' || COALESCE(details, '') FROM channel_events
		 WHERE channel_id = ? ORDER BY id DESC LIMIT ?`,
		channelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: recent events: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("store: scan event row: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// GetConfig returns a channel's stored configuration row, or (nil, nil) if
// the channel has never been configured.
func (s *Store) GetConfig(channelID string) (*ChannelConfigRow, error) {
	var row ChannelConfigRow
	var lastError sql.NullString
	var heartbeat sql.NullInt64
	err := s.db.QueryRow(
		`SELECT channel_id, config_json, status, enabled, last_error, last_heartbeat_ms, created_at, updated_at
		 FROM channel_configs WHERE channel_id = ?`,
		channelID,
	).Scan(&row.ChannelID, &row.ConfigJSON, &row.Status, &row.Enabled, &lastError, &heartbeat, &row.CreatedAt, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get config: %w", err)
	}
	row.LastError = lastError.String
	row.LastHeartbeatMs = heartbeat.Int64
	return &row, nil
}

// DeleteChannel cascades the removal of a channel's config, events, and
// credentials in one transaction. Audit rows are retained for history.
func (s *Store) DeleteChannel(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin delete channel: %w", err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM channel_configs WHERE channel_id = ?`,
		`DELETE FROM channel_events WHERE channel_id = ?`,
		`DELETE FROM channel_credentials WHERE channel_id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, channelID); err != nil {
			return fmt.Errorf("store: delete channel: %w", err)
		}
	}
	return tx.Commit()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
