package secrets

import (
	"path/filepath"
	"testing"

	"github.com/kafgate/kafgate/internal/store"
)

func openVaultTestStore(t *testing.T) *store.Store {
	t.Helper()
	t.Setenv("KAFGATE_OAUTH_KEY_BACKEND", "local")
	t.Setenv("KAFGATE_HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "kafgate.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVaultSaveAndLoadCredentialsRoundTrip(t *testing.T) {
	st := openVaultTestStore(t)
	v := NewVault(st)

	creds := map[string]string{"auth_token": "s3cret", "account_sid": "AC123"}
	if err := v.SaveCredentials("wa1", creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	got, err := v.LoadCredentials("wa1")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got["auth_token"] != "s3cret" || got["account_sid"] != "AC123" {
		t.Fatalf("unexpected credentials: %+v", got)
	}
}

func TestVaultLoadCredentialsReturnsEmptyMapWhenUnset(t *testing.T) {
	st := openVaultTestStore(t)
	v := NewVault(st)

	got, err := v.LoadCredentials("unset-channel")
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty map, got %+v", got)
	}
}
