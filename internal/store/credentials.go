package store

import (
	"database/sql"
	"fmt"

	"github.com/kafgate/kafgate/internal/ids"
)

// SaveCredentialBlob upserts the vault-encrypted credential blob for a
// channel. The blob's own encryption (see internal/secrets) is what keeps
// it opaque at rest; this store only persists and retrieves bytes.
func (s *Store) SaveCredentialBlob(channelID, encryptedBlob string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO channel_credentials (channel_id, encrypted_blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(channel_id) DO UPDATE SET
		   encrypted_blob = excluded.encrypted_blob,
		   updated_at = excluded.updated_at`,
		channelID, encryptedBlob, ids.NowMs(),
	); err != nil {
		return fmt.Errorf("store: save credential blob: %w", err)
	}
	return nil
}

// GetCredentialBlob returns the stored encrypted blob for a channel, or
// ("", nil) if none is stored.
func (s *Store) GetCredentialBlob(channelID string) (string, error) {
	var blob string
	err := s.db.QueryRow(`SELECT encrypted_blob FROM channel_credentials WHERE channel_id = ?`, channelID).Scan(&blob)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get credential blob: %w", err)
	}
	return blob, nil
}

// SaveWebhookReply records the webhook-edit token for a Discord deferred
// interaction so the edit can still happen after a process restart, within
// the token's 15-minute validity window.
func (s *Store) SaveWebhookReply(interactionID, channelID, webhookToken string, expiresAtMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`INSERT INTO webhook_replies (interaction_id, channel_id, webhook_token, expires_at_ms) VALUES (?, ?, ?, ?)
		 ON CONFLICT(interaction_id) DO UPDATE SET
		   webhook_token = excluded.webhook_token,
		   expires_at_ms = excluded.expires_at_ms`,
		interactionID, channelID, webhookToken, expiresAtMs,
	); err != nil {
		return fmt.Errorf("store: save webhook reply: %w", err)
	}
	return nil
}

// GetWebhookReply returns the stored webhook token for a Discord
// interaction, if it hasn't expired.
func (s *Store) GetWebhookReply(interactionID string) (channelID, webhookToken string, ok bool, err error) {
	var expiresAtMs int64
	err = s.db.QueryRow(
		`SELECT channel_id, webhook_token, expires_at_ms FROM webhook_replies WHERE interaction_id = ?`,
		interactionID,
	).Scan(&channelID, &webhookToken, &expiresAtMs)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("store: get webhook reply: %w", err)
	}
	if expiresAtMs < ids.NowMs() {
		return "", "", false, nil
	}
	return channelID, webhookToken, true, nil
}

// CleanupWebhookReplies removes expired webhook-reply rows.
func (s *Store) CleanupWebhookReplies() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM webhook_replies WHERE expires_at_ms < ?`, ids.NowMs())
	if err != nil {
		return 0, fmt.Errorf("store: cleanup webhook replies: %w", err)
	}
	return res.RowsAffected()
}
