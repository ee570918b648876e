package session

import (
	"strings"
	"testing"
	"time"

	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/registry"
)

func TestComputeLookupKeyUserScope(t *testing.T) {
	got := ComputeLookupKey(registry.ScopeUser, "slack_1", "u1", "ignored")
	if got != "slack_1:u1" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestComputeLookupKeyUserConversationScope(t *testing.T) {
	got := ComputeLookupKey(registry.ScopeUserConversation, "slack_1", "u1", "c1")
	if got != "slack_1:u1:c1" {
		t.Fatalf("unexpected key: %q", got)
	}
}

func TestParseLookupKeyRoundTrips(t *testing.T) {
	channelID, userKey, convKey, err := ParseLookupKey("slack_1:u1:c1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if channelID != "slack_1" || userKey != "u1" || convKey != "c1" {
		t.Fatalf("unexpected parse result: %s %s %s", channelID, userKey, convKey)
	}

	channelID, userKey, convKey, err = ParseLookupKey("slack_1:u1")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if channelID != "slack_1" || userKey != "u1" || convKey != "" {
		t.Fatalf("unexpected parse result: %s %s %s", channelID, userKey, convKey)
	}
}

func TestParseLookupKeyRejectsMalformed(t *testing.T) {
	if _, _, _, err := ParseLookupKey("not-a-key"); err == nil {
		t.Fatal("expected malformed key to error")
	}
}

func TestResolveMissingManifestErrors(t *testing.T) {
	reg := registry.New(t.TempDir())
	r := NewRouter(reg)
	msg := message.NewInbound("unknown_1", "u1", "", "m1", message.TypeText, time.Time{})

	if _, err := r.Resolve(msg); err == nil {
		t.Fatal("expected missing manifest to error")
	}
}

func TestResolveComputesKeyAndTitleHint(t *testing.T) {
	reg := registry.New(t.TempDir())
	reg.Register(registry.Manifest{ID: "slack_1", SessionScope: registry.ScopeUserConversation})
	r := NewRouter(reg)

	msg := message.NewInbound("slack_1", "u1", "c1", "m1", message.TypeText, time.Time{})
	msg.Text = "hello world"

	resolved, err := r.Resolve(msg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.LookupKey != "slack_1:u1:c1" {
		t.Fatalf("unexpected lookup key: %q", resolved.LookupKey)
	}
	if resolved.TitleHint != "hello world" {
		t.Fatalf("unexpected title hint: %q", resolved.TitleHint)
	}
}

func TestResolveTitleHintEllipsizesLongText(t *testing.T) {
	reg := registry.New(t.TempDir())
	reg.Register(registry.Manifest{ID: "slack_1", SessionScope: registry.ScopeUser})
	r := NewRouter(reg)

	long := strings.Repeat("a", 80)
	msg := message.NewInbound("slack_1", "u1", "", "m1", message.TypeText, time.Time{})
	msg.Text = long

	resolved, err := r.Resolve(msg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len([]rune(resolved.TitleHint)) != 50 {
		t.Fatalf("expected 50-rune title hint, got %d", len([]rune(resolved.TitleHint)))
	}
	if !strings.HasSuffix(resolved.TitleHint, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", resolved.TitleHint)
	}
}
