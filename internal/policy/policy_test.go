package policy

import "testing"

func TestChatOnlyAlwaysAllowsChat(t *testing.T) {
	p := NewPolicy()
	if err := p.Validate(); err != nil {
		t.Fatalf("default policy should validate: %v", err)
	}
}

func TestValidateRejectsChatOnlyWithExecute(t *testing.T) {
	p := NewPolicy()
	p.AllowExecute = true
	if err := p.Validate(); err == nil {
		t.Fatal("expected chat_only + allow_execute to fail validation")
	}
}

func TestAdminTokenConstantTimeMatch(t *testing.T) {
	p := NewPolicy()
	p.SetAdminToken("s3cret")
	if !p.CheckAdminToken("s3cret") {
		t.Fatal("expected matching token to verify")
	}
	if p.CheckAdminToken("wrong") {
		t.Fatal("expected mismatched token to fail")
	}
}

func TestEvaluateRejectsUnwhitelistedCommand(t *testing.T) {
	e := NewEnforcer()
	p := NewPolicy()
	p.AllowedCommands = []string{"/session", "/help"}
	p.BlockOnViolation = true
	e.SetPolicy("slack_1", p)

	v := e.Evaluate("slack_1", "u1", "/danger now")
	if !v.Reject {
		t.Fatal("expected unwhitelisted command to be rejected")
	}
	if len(v.Violations) != 1 || v.Violations[0].Reason != "command_not_whitelisted" {
		t.Fatalf("unexpected violations: %+v", v.Violations)
	}
}

func TestEvaluateAllowsWhitelistedCommand(t *testing.T) {
	e := NewEnforcer()
	p := NewPolicy()
	p.AllowedCommands = []string{"/session", "/help"}
	e.SetPolicy("slack_1", p)

	v := e.Evaluate("slack_1", "u1", "/session new")
	if v.Reject {
		t.Fatal("expected whitelisted command to pass")
	}
}

func TestEvaluateExecuteKeywordIsNonBlockingWarning(t *testing.T) {
	e := NewEnforcer()
	p := NewPolicy()
	e.SetPolicy("slack_1", p)

	v := e.Evaluate("slack_1", "u1", "please run this script for me")
	if v.Reject {
		t.Fatal("execute-keyword detection must not reject the message")
	}
	if len(v.Violations) != 1 || v.Violations[0].Reason != "operation_denied" {
		t.Fatalf("expected one operation_denied violation, got %+v", v.Violations)
	}
}

func TestEvaluateExecuteKeywordMatchesBareWords(t *testing.T) {
	e := NewEnforcer()
	p := NewPolicy()
	e.SetPolicy("slack_1", p)

	for _, text := range []string{
		"what's the command to restart this?",
		"the system is down",
	} {
		v := e.Evaluate("slack_1", "u1", text)
		if len(v.Violations) != 1 || v.Violations[0].Reason != "operation_denied" {
			t.Fatalf("text %q: expected one operation_denied violation, got %+v", text, v.Violations)
		}
	}
}

func TestViolationRingIsBounded(t *testing.T) {
	e := NewEnforcer()
	p := NewPolicy()
	p.AllowedCommands = nil
	p.BlockOnViolation = false
	e.SetPolicy("slack_1", p)

	for i := 0; i < ringCapacity+50; i++ {
		e.Evaluate("slack_1", "u1", "/whatever")
	}

	got := e.RecentViolations()
	if len(got) != ringCapacity {
		t.Fatalf("expected ring capped at %d, got %d", ringCapacity, len(got))
	}
}

func TestSinkReceivesViolations(t *testing.T) {
	e := NewEnforcer()
	p := NewPolicy()
	p.AllowedCommands = nil
	p.BlockOnViolation = false
	e.SetPolicy("slack_1", p)

	var received []Violation
	e.SetSink(func(v Violation) { received = append(received, v) })

	e.Evaluate("slack_1", "u1", "/nope")
	if len(received) != 1 {
		t.Fatalf("expected sink to receive 1 violation, got %d", len(received))
	}
}
