package secrets

import (
	"encoding/json"
	"fmt"

	"github.com/kafgate/kafgate/internal/store"
)

// Vault persists per-channel credential maps (API tokens, signing secrets,
// IMAP passwords, OAuth2 refresh tokens) encrypted at rest via the shared
// master key, keyed by channel_id in the store's channel_credentials table.
type Vault struct {
	Store *store.Store
}

// NewVault builds a Vault backed by st.
func NewVault(st *store.Store) *Vault {
	return &Vault{Store: st}
}

// SaveCredentials JSON-encodes and encrypts creds, then upserts the blob for
// channelID.
func (v *Vault) SaveCredentials(channelID string, creds map[string]string) error {
	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("secrets: marshal credentials: %w", err)
	}
	blob, err := EncryptBlob(plain)
	if err != nil {
		return fmt.Errorf("secrets: encrypt credentials: %w", err)
	}
	return v.Store.SaveCredentialBlob(channelID, string(blob))
}

// LoadCredentials decrypts and decodes the stored credential map for
// channelID, returning an empty map if none is stored.
func (v *Vault) LoadCredentials(channelID string) (map[string]string, error) {
	blob, err := v.Store.GetCredentialBlob(channelID)
	if err != nil {
		return nil, fmt.Errorf("secrets: load credential blob: %w", err)
	}
	if blob == "" {
		return map[string]string{}, nil
	}
	plain, err := DecryptBlob([]byte(blob))
	if err != nil {
		return nil, fmt.Errorf("secrets: decrypt credentials: %w", err)
	}
	creds := map[string]string{}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("secrets: unmarshal credentials: %w", err)
	}
	return creds, nil
}
