package middleware

import (
	"context"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/store"
)

// Dedupe rejects inbound messages whose (channel_id, message_id) pair has
// already been seen. Outbound is pass-through.
type Dedupe struct {
	Store *store.Store
}

func (d *Dedupe) Name() string { return "dedupe" }

func (d *Dedupe) ProcessInbound(ctx context.Context, msg *message.Inbound, pctx *bus.Context) *bus.Context {
	dup, err := d.Store.IsDuplicate(msg.MessageID, msg.ChannelID)
	if err != nil {
		pctx.Status = bus.StatusError
		pctx.Err = err
		return pctx
	}
	if dup {
		pctx.Status = bus.StatusReject
		pctx.Meta.DedupeReason = "duplicate_message_id"
		count, _ := d.Store.DedupeCount(msg.MessageID, msg.ChannelID)
		pctx.Meta.DedupeCount = count
		return pctx
	}
	return pctx
}

func (d *Dedupe) ProcessOutbound(ctx context.Context, msg *message.Outbound, pctx *bus.Context) *bus.Context {
	return pctx
}
