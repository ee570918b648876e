// Package channels implements the gateway's per-provider adapters: webhook
// ingress parsing, outbound delivery, and the shared webhook-signature and
// Twilio REST helpers they all build on.
package channels

import (
	"context"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/message"
)

// Adapter is re-exported for convenience so channel implementations can
// assert against it without importing internal/bus directly.
type Adapter = bus.Adapter

// BaseAdapter provides the fields every concrete channel adapter embeds:
// its channel id and a reference to the bus for ProcessInbound calls made
// from webhook handlers.
type BaseAdapter struct {
	ID  string
	Bus *bus.Bus
}

// ChannelID satisfies bus.Adapter.
func (b *BaseAdapter) ChannelID() string { return b.ID }

// Deliver runs msg through ProcessInbound on the adapter's bus — the
// common tail of every webhook handler once it has parsed a provider
// payload into the uniform message.Inbound shape.
func (b *BaseAdapter) Deliver(ctx context.Context, msg *message.Inbound) *bus.Context {
	return b.Bus.ProcessInbound(ctx, msg)
}
