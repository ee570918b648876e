package command

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/kafgate/kafgate/internal/store"
)

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cmd.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewProcessor(s)
}

func TestIsCommand(t *testing.T) {
	if !IsCommand("  /help") {
		t.Fatal("expected leading-slash text to be a command")
	}
	if IsCommand("hello") {
		t.Fatal("expected plain text to not be a command")
	}
}

func TestHelpCommand(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Process("slack_1", "u1", "", "/help")
	if out.Metadata["command"] != "help" {
		t.Fatalf("unexpected command tag: %q", out.Metadata["command"])
	}
	if !strings.Contains(out.Text, "/session new") {
		t.Fatalf("expected help text to enumerate /session new, got %q", out.Text)
	}
}

func TestUnknownCommand(t *testing.T) {
	p := newTestProcessor(t)
	out := p.Process("slack_1", "u1", "", "/nonexistent")
	if !strings.Contains(out.Text, "/help") {
		t.Fatalf("expected unknown command hint to mention /help, got %q", out.Text)
	}
}

// TestSessionCommandScenario exercises the end-to-end sequence: new, new
// (second becomes active), list (both shown, one marked active), id
// (reports the active session), close (archives), id (reports no active session).
func TestSessionCommandScenario(t *testing.T) {
	p := newTestProcessor(t)

	first := p.Process("slack_1", "u1", "", "/session new")
	if !strings.Contains(first.Text, "session created") {
		t.Fatalf("unexpected first session response: %q", first.Text)
	}

	second := p.Process("slack_1", "u1", "", "/session new")
	if !strings.Contains(second.Text, "session created") {
		t.Fatalf("unexpected second session response: %q", second.Text)
	}

	listResp := p.Process("slack_1", "u1", "", "/session list")
	if strings.Count(listResp.Text, "\n") < 2 {
		t.Fatalf("expected at least 2 sessions listed, got %q", listResp.Text)
	}
	if !strings.Contains(listResp.Text, "➤") {
		t.Fatalf("expected an active-session marker in list, got %q", listResp.Text)
	}

	idResp := p.Process("slack_1", "u1", "", "/session id")
	if !strings.Contains(idResp.Text, "Active session:") {
		t.Fatalf("expected an active session before close, got %q", idResp.Text)
	}

	closeResp := p.Process("slack_1", "u1", "", "/session close")
	if !strings.Contains(closeResp.Text, "archived") {
		t.Fatalf("unexpected close response: %q", closeResp.Text)
	}

	afterClose := p.Process("slack_1", "u1", "", "/session id")
	if !strings.Contains(afterClose.Text, "No active session") {
		t.Fatalf("expected no active session after close, got %q", afterClose.Text)
	}
}

func TestSessionUseSwitchesActive(t *testing.T) {
	p := newTestProcessor(t)

	first := p.Process("slack_1", "u1", "", "/session new")
	firstID := strings.TrimPrefix(first.Text, "✅ New session created: ")
	p.Process("slack_1", "u1", "", "/session new")

	useResp := p.Process("slack_1", "u1", "", "/session use "+firstID)
	if !strings.Contains(useResp.Text, "Switched to session "+firstID) {
		t.Fatalf("unexpected use response: %q", useResp.Text)
	}

	idResp := p.Process("slack_1", "u1", "", "/session id")
	if !strings.Contains(idResp.Text, firstID) {
		t.Fatalf("expected active session to be %s, got %q", firstID, idResp.Text)
	}
}
