// Package policy evaluates per-channel security policy against inbound
// messages: command whitelisting, execute-keyword detection, and admin
// token verification.
package policy

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mode is the coarse operating mode of a channel's security policy.
type Mode string

const (
	ModeChatOnly            Mode = "chat_only"
	ModeChatExecRestricted  Mode = "chat_exec_restricted"
)

// Policy mirrors the gateway's SecurityPolicy type. mode=chat_only implies
// AllowExecute=false; "chat" is always a member of AllowedOperations.
type Policy struct {
	Mode               Mode
	AllowExecute       bool
	AllowedCommands    []string
	RequireAdminToken  bool
	AdminTokenHash     [32]byte
	AllowedOperations  map[string]bool
	RateLimitPerMinute int
	BlockOnViolation   bool
}

// NewPolicy returns the restrictive default: chat-only, no execute, no
// commands whitelisted beyond what's passed in.
func NewPolicy() Policy {
	return Policy{
		Mode:              ModeChatOnly,
		AllowedOperations: map[string]bool{"chat": true},
		BlockOnViolation:  true,
	}
}

// SetAdminToken stores the SHA-256 hash of a plaintext admin token; raw
// tokens are never retained.
func (p *Policy) SetAdminToken(token string) {
	p.AdminTokenHash = sha256.Sum256([]byte(token))
	p.RequireAdminToken = true
}

// CheckAdminToken performs a constant-time comparison against the stored
// hash, defeating timing side-channels on token validation.
func (p *Policy) CheckAdminToken(token string) bool {
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(got[:], p.AdminTokenHash[:]) == 1
}

// Violation records one policy breach for the in-memory audit ring.
type Violation struct {
	ChannelID string
	UserKey   string
	Reason    string
	Detail    string
	Ts        time.Time
}

// Verdict is the outcome of evaluating one inbound message against a
// channel's policy.
type Verdict struct {
	Reject     bool
	Violations []Violation
}

const ringCapacity = 1000

// Enforcer evaluates inbound messages against per-channel policies and
// keeps a bounded ring of recent violations for diagnostics.
type Enforcer struct {
	mu         sync.Mutex
	policies   map[string]Policy
	violations []Violation
	sink       func(Violation)
}

// NewEnforcer builds an Enforcer with no registered channel policies.
func NewEnforcer() *Enforcer {
	return &Enforcer{policies: make(map[string]Policy)}
}

// SetSink installs an optional external audit sink invoked for every
// recorded violation, in addition to the in-memory ring.
func (e *Enforcer) SetSink(sink func(Violation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = sink
}

// SetPolicy registers or replaces the policy for a channel.
func (e *Enforcer) SetPolicy(channelID string, p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[channelID] = p
}

// Policy returns the registered policy for a channel, or the restrictive
// default if none is registered.
func (e *Enforcer) Policy(channelID string) Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.policies[channelID]; ok {
		return p
	}
	return NewPolicy()
}

var executeKeywords = []string{"execute", "run", "exec", "system", "shell", "command"}

// Evaluate applies the channel's policy to inbound text, per the gateway's
// two ordered rules: command whitelisting (blocking when configured), then
// a non-blocking execute-keyword scan.
func (e *Enforcer) Evaluate(channelID, userKey, text string) Verdict {
	p := e.Policy(channelID)
	var v Verdict

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "/") {
		fields := strings.Fields(trimmed)
		cmd := fields[0]
		if !commandAllowed(cmd, p.AllowedCommands) {
			viol := e.record(channelID, userKey, "command_not_whitelisted", cmd)
			v.Violations = append(v.Violations, viol)
			if p.BlockOnViolation {
				v.Reject = true
			}
		}
	}

	if containsExecuteKeyword(trimmed) && !p.AllowedOperations["execute"] {
		viol := e.record(channelID, userKey, "operation_denied", "execute")
		v.Violations = append(v.Violations, viol)
		// Non-blocking: a warning only, never rejects the message.
	}

	return v
}

func commandAllowed(cmd string, allowed []string) bool {
	for _, a := range allowed {
		if a == cmd || strings.HasPrefix(cmd, a) {
			return true
		}
	}
	return false
}

func containsExecuteKeyword(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range executeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func (e *Enforcer) record(channelID, userKey, reason, detail string) Violation {
	v := Violation{
		ChannelID: channelID,
		UserKey:   userKey,
		Reason:    reason,
		Detail:    detail,
		Ts:        time.Now().UTC(),
	}

	e.mu.Lock()
	e.violations = append(e.violations, v)
	if len(e.violations) > ringCapacity {
		e.violations = e.violations[len(e.violations)-ringCapacity:]
	}
	sink := e.sink
	e.mu.Unlock()

	if sink != nil {
		sink(v)
	}
	return v
}

// RecentViolations returns a copy of the bounded violation ring, most
// recent last.
func (e *Enforcer) RecentViolations() []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Violation, len(e.violations))
	copy(out, e.violations)
	return out
}

// Validate enforces the gateway's policy invariant: chat_only implies no
// execute, and "chat" must always be an allowed operation.
func (p Policy) Validate() error {
	if p.Mode == ModeChatOnly && p.AllowExecute {
		return fmt.Errorf("policy: mode=chat_only requires allow_execute=false")
	}
	if !p.AllowedOperations["chat"] {
		return fmt.Errorf("policy: chat must always be an allowed operation")
	}
	return nil
}
