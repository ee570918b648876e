package middleware

import (
	"context"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/policy"
	"github.com/kafgate/kafgate/internal/store"
)

const rateLimitWindowMs = 60_000

// RateLimit enforces a sliding one-minute window per (channel_id, user_key),
// with the limit taken from the channel's registered security policy.
// Outbound is pass-through.
type RateLimit struct {
	Store    *store.Store
	Policies *policy.Enforcer
}

func (r *RateLimit) Name() string { return "rate_limit" }

func (r *RateLimit) ProcessInbound(ctx context.Context, msg *message.Inbound, pctx *bus.Context) *bus.Context {
	max := r.Policies.Policy(msg.ChannelID).RateLimitPerMinute
	if max <= 0 {
		return pctx
	}

	allowed, count, err := r.Store.CheckRateLimit(msg.ChannelID, msg.UserKey, rateLimitWindowMs, max)
	if err != nil {
		pctx.Status = bus.StatusError
		pctx.Err = err
		return pctx
	}
	if !allowed {
		pctx.Status = bus.StatusReject
		pctx.Meta.RateLimitCount = count
		pctx.Meta.RateLimitMax = max
		pctx.Meta.RateLimitWindowMs = rateLimitWindowMs
	}
	return pctx
}

func (r *RateLimit) ProcessOutbound(ctx context.Context, msg *message.Outbound, pctx *bus.Context) *bus.Context {
	return pctx
}
