package middleware

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/policy"
	"github.com/kafgate/kafgate/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "mw.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func inboundMsg(channelID, userKey, messageID, text string) *message.Inbound {
	m := message.NewInbound(channelID, userKey, "", messageID, message.TypeText, time.Time{})
	m.Text = text
	return m
}

func TestDedupeRejectsSecondOccurrence(t *testing.T) {
	s := newTestStore(t)
	d := &Dedupe{Store: s}

	msg := inboundMsg("slack_1", "u1", "m1", "hi")
	pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx = d.ProcessInbound(context.Background(), msg, pctx)
	if pctx.Status != bus.StatusContinue {
		t.Fatalf("expected first occurrence to continue, got %s", pctx.Status)
	}

	pctx2 := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx2 = d.ProcessInbound(context.Background(), msg, pctx2)
	if pctx2.Status != bus.StatusReject {
		t.Fatalf("expected duplicate to be rejected, got %s", pctx2.Status)
	}
	if pctx2.Meta.DedupeReason != "duplicate_message_id" {
		t.Fatalf("unexpected dedupe reason: %q", pctx2.Meta.DedupeReason)
	}
}

func TestRateLimitDeniesOverMax(t *testing.T) {
	s := newTestStore(t)
	p := policy.NewEnforcer()
	p.SetPolicy("slack_1", policy.Policy{
		AllowedOperations:  map[string]bool{"chat": true},
		RateLimitPerMinute: 2,
	})
	rl := &RateLimit{Store: s, Policies: p}

	for i := 0; i < 2; i++ {
		msg := inboundMsg("slack_1", "u1", "m", "hi")
		pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
		pctx = rl.ProcessInbound(context.Background(), msg, pctx)
		if pctx.Status != bus.StatusContinue {
			t.Fatalf("expected request %d to be allowed, got %s", i, pctx.Status)
		}
	}

	msg := inboundMsg("slack_1", "u1", "m", "hi")
	pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx = rl.ProcessInbound(context.Background(), msg, pctx)
	if pctx.Status != bus.StatusReject {
		t.Fatalf("expected 3rd request to be rejected, got %s", pctx.Status)
	}
	if pctx.Meta.RateLimitMax != 2 {
		t.Fatalf("expected rate limit max recorded as 2, got %d", pctx.Meta.RateLimitMax)
	}
}

func TestRateLimitSkippedWhenUnconfigured(t *testing.T) {
	s := newTestStore(t)
	p := policy.NewEnforcer()
	rl := &RateLimit{Store: s, Policies: p}

	msg := inboundMsg("slack_1", "u1", "m", "hi")
	pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx = rl.ProcessInbound(context.Background(), msg, pctx)
	if pctx.Status != bus.StatusContinue {
		t.Fatalf("expected no rate limit configured to pass through, got %s", pctx.Status)
	}
}

func TestAuditRecordsEntryID(t *testing.T) {
	s := newTestStore(t)
	a := &Audit{Store: s}

	msg := inboundMsg("slack_1", "u1", "m1", "hi")
	pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx = a.ProcessInbound(context.Background(), msg, pctx)
	if pctx.Meta.AuditEntryID == 0 {
		t.Fatal("expected a non-zero audit entry id")
	}
}

func TestPolicyEnforcerRejectsUnwhitelistedCommand(t *testing.T) {
	enforcer := policy.NewEnforcer()
	p := policy.NewPolicy()
	p.AllowedCommands = []string{"/help"}
	enforcer.SetPolicy("slack_1", p)

	pe := &PolicyEnforcer{Enforcer: enforcer}
	msg := inboundMsg("slack_1", "u1", "m1", "/dangerous do-it")
	pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx = pe.ProcessInbound(context.Background(), msg, pctx)
	if pctx.Status != bus.StatusReject {
		t.Fatalf("expected reject, got %s", pctx.Status)
	}
	if pctx.Meta.SecurityViolation != "command_not_whitelisted" {
		t.Fatalf("unexpected violation: %q", pctx.Meta.SecurityViolation)
	}
}

func TestPolicyEnforcerAllowsPlainChat(t *testing.T) {
	enforcer := policy.NewEnforcer()
	enforcer.SetPolicy("slack_1", policy.NewPolicy())

	pe := &PolicyEnforcer{Enforcer: enforcer}
	msg := inboundMsg("slack_1", "u1", "m1", "hello there")
	pctx := bus.NewContext(msg.MessageID, msg.ChannelID)
	pctx = pe.ProcessInbound(context.Background(), msg, pctx)
	if pctx.Status != bus.StatusContinue {
		t.Fatalf("expected plain chat to continue, got %s", pctx.Status)
	}
}
