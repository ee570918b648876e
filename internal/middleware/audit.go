package middleware

import (
	"context"
	"log"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/store"
)

// Audit logs every inbound and outbound message. A logging failure is a
// warning, never a message failure.
type Audit struct {
	Store *store.Store
}

func (a *Audit) Name() string { return "audit" }

func (a *Audit) ProcessInbound(ctx context.Context, msg *message.Inbound, pctx *bus.Context) *bus.Context {
	id, err := a.Store.LogInbound(msg.ChannelID, msg.UserKey, msg.ConversationKey, msg.MessageID, string(pctx.Status), nil)
	if err != nil {
		log.Printf("middleware: audit log inbound failed: %v", err)
		return pctx
	}
	pctx.Meta.AuditEntryID = id
	return pctx
}

func (a *Audit) ProcessOutbound(ctx context.Context, msg *message.Outbound, pctx *bus.Context) *bus.Context {
	id, err := a.Store.LogOutbound(msg.ChannelID, msg.UserKey, msg.ConversationKey, msg.MessageID, string(pctx.Status), nil)
	if err != nil {
		log.Printf("middleware: audit log outbound failed: %v", err)
		return pctx
	}
	pctx.Meta.AuditEntryID = id
	return pctx
}
