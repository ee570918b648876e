package middleware

import (
	"context"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/policy"
)

// PolicyEnforcer wraps a policy.Enforcer as an inbound-only middleware:
// command whitelisting (optionally blocking) followed by a non-blocking
// execute-keyword scan. Outbound is pass-through.
type PolicyEnforcer struct {
	Enforcer *policy.Enforcer
}

func (p *PolicyEnforcer) Name() string { return "policy_enforcer" }

func (p *PolicyEnforcer) ProcessInbound(ctx context.Context, msg *message.Inbound, pctx *bus.Context) *bus.Context {
	verdict := p.Enforcer.Evaluate(msg.ChannelID, msg.UserKey, msg.Text)
	if len(verdict.Violations) > 0 {
		last := verdict.Violations[len(verdict.Violations)-1]
		pctx.Meta.SecurityViolation = last.Reason
	}
	if verdict.Reject {
		pctx.Status = bus.StatusReject
	}
	return pctx
}

func (p *PolicyEnforcer) ProcessOutbound(ctx context.Context, msg *message.Outbound, pctx *bus.Context) *bus.Context {
	return pctx
}
