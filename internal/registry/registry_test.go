package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsManifestFiles(t *testing.T) {
	dir := t.TempDir()
	m := Manifest{
		ID:           "telegram",
		Display:      "Telegram",
		SessionScope: ScopeUser,
		RequiredConfigFields: []ConfigField{
			{Name: "botToken", Secret: true, Regex: `^\d+:[A-Za-z0-9_-]+$`},
		},
	}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "telegram_manifest.json"), data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	// A non-manifest file must be ignored.
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write readme: %v", err)
	}

	reg := New(dir)
	if err := reg.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	got, ok := reg.GetManifest("telegram")
	if !ok {
		t.Fatal("expected telegram manifest to load")
	}
	if got.Display != "Telegram" {
		t.Fatalf("unexpected display: %q", got.Display)
	}
	if len(reg.ListManifests()) != 1 {
		t.Fatalf("expected exactly 1 manifest, got %d", len(reg.ListManifests()))
	}
}

func TestValidateConfigChecksRequiredPresenceRegexAndOptions(t *testing.T) {
	m := Manifest{
		ID: "email",
		RequiredConfigFields: []ConfigField{
			{Name: "provider", Options: []string{"imap", "gmail_api"}},
			{Name: "imapHost", Regex: `^[a-z0-9.]+$`},
		},
	}

	if ok, err := ValidateConfig(m, map[string]string{"provider": "imap", "imapHost": "imap.example.com"}); !ok || err != nil {
		t.Fatalf("expected valid config to pass, got ok=%v err=%v", ok, err)
	}

	if ok, _ := ValidateConfig(m, map[string]string{"provider": "smtp", "imapHost": "imap.example.com"}); ok {
		t.Fatal("expected invalid option to fail")
	}

	if ok, _ := ValidateConfig(m, map[string]string{"provider": "imap"}); ok {
		t.Fatal("expected missing required field to fail")
	}

	if ok, _ := ValidateConfig(m, map[string]string{"provider": "imap", "imapHost": "NOT VALID!!"}); ok {
		t.Fatal("expected regex mismatch to fail")
	}
}

func TestReloadReplacesInProcessRegistrations(t *testing.T) {
	dir := t.TempDir()
	reg := New(dir)
	reg.Register(Manifest{ID: "scratch"})
	if _, ok := reg.GetManifest("scratch"); !ok {
		t.Fatal("expected in-process registration to be visible")
	}

	if err := reg.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if _, ok := reg.GetManifest("scratch"); ok {
		t.Fatal("expected reload from an empty dir to drop in-process registrations")
	}
}
