package store

import (
	"fmt"

	"github.com/kafgate/kafgate/internal/ids"
)

// CheckRateLimit counts events newer than now-windowMs for (channelID,
// userKey); if the count is below maxRequests it inserts a new event and
// returns (true, newCount), otherwise it returns (false, currentCount)
// without inserting — a sliding window.
func (s *Store) CheckRateLimit(channelID, userKey string, windowMs int64, maxRequests int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := ids.NowMs()
	cutoff := now - windowMs

	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM rate_limit_events WHERE channel_id = ? AND user_key = ? AND timestamp_ms > ?`,
		channelID, userKey, cutoff,
	).Scan(&count)
	if err != nil {
		return false, 0, fmt.Errorf("store: rate limit count: %w", err)
	}

	if count >= maxRequests {
		return false, count, nil
	}

	if _, err := s.db.Exec(
		`INSERT INTO rate_limit_events (channel_id, user_key, timestamp_ms) VALUES (?, ?, ?)`,
		channelID, userKey, now,
	); err != nil {
		return false, count, fmt.Errorf("store: rate limit insert: %w", err)
	}
	return true, count + 1, nil
}

// CleanupRateLimitEvents removes events older than retentionMs.
func (s *Store) CleanupRateLimitEvents(retentionMs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := ids.NowMs() - retentionMs
	res, err := s.db.Exec(`DELETE FROM rate_limit_events WHERE timestamp_ms < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: rate limit cleanup: %w", err)
	}
	return res.RowsAffected()
}
