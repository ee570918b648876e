// Package bus implements the message bus: the ordered middleware chain, the
// channel adapter registry, and the post-chain inbound handler list that the
// external chat backend subscribes through.
package bus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/kafgate/kafgate/internal/ids"
	"github.com/kafgate/kafgate/internal/message"
)

// Status is the outcome of running a message through the middleware chain.
type Status string

const (
	StatusContinue Status = "continue"
	StatusStop     Status = "stop"
	StatusReject   Status = "reject"
	StatusError    Status = "error"
)

// ProcessingMeta holds the named metadata fields this gateway's middlewares
// actually populate, plus an opaque overflow map for anything else.
type ProcessingMeta struct {
	DedupeReason      string
	DedupeCount       int
	RateLimitCount    int
	RateLimitMax      int
	RateLimitWindowMs int64
	AuditEntryID      int64
	Command           string
	SecurityPolicy    string
	SecurityViolation string
	Overflow          map[string]string
}

// Context is the typed pass-through object threaded through every middleware
// invocation for a single message.
type Context struct {
	MessageID string
	ChannelID string
	Status    Status
	Meta      ProcessingMeta
	Err       error
}

// NewContext builds a fresh Context in the continue state.
func NewContext(messageID, channelID string) *Context {
	return &Context{
		MessageID: messageID,
		ChannelID: channelID,
		Status:    StatusContinue,
		Meta:      ProcessingMeta{Overflow: map[string]string{}},
	}
}

// Middleware is the pair of hooks every bus interceptor implements.
// Implementations must mutate only ctx, never the message.
type Middleware interface {
	Name() string
	ProcessInbound(ctx context.Context, msg *message.Inbound, pctx *Context) *Context
	ProcessOutbound(ctx context.Context, msg *message.Outbound, pctx *Context) *Context
}

// Adapter is the minimal contract every channel implementation satisfies.
// Per-channel ingress (parse_event, parse_update, poll, ...) lives as
// concrete methods on the adapter's own type, not on this interface.
type Adapter interface {
	ChannelID() string
	Send(ctx context.Context, msg *message.Outbound) error
}

// InboundHandler receives every message that clears the middleware chain.
// Panics are recovered and logged, never propagated.
type InboundHandler func(msg *message.Inbound)

// Bus is the registry + dispatcher: an ordered middleware list, a channel_id
// → adapter map, and the external backend's inbound handlers. Built once at
// startup and passed explicitly to webhook handlers — no global singleton.
type Bus struct {
	mu         sync.RWMutex
	middleware []Middleware
	adapters   map[string]Adapter
	handlers   []InboundHandler
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{
		adapters: map[string]Adapter{},
	}
}

// Use appends a middleware to the end of the chain. Not safe to call
// concurrently with dispatch; call during startup wiring.
func (b *Bus) Use(mw Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, mw)
}

// RegisterAdapter wires a channel adapter into the bus. Registration is
// synchronous and visible to subsequent calls immediately.
func (b *Bus) RegisterAdapter(a Adapter) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters[a.ChannelID()] = a
}

// UnregisterAdapter removes a previously registered adapter.
func (b *Bus) UnregisterAdapter(channelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.adapters, channelID)
}

// Adapter returns the adapter registered for channelID, if any.
func (b *Bus) Adapter(channelID string) (Adapter, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	a, ok := b.adapters[channelID]
	return a, ok
}

// AdapterIDs returns every registered channel_id, for status reporting.
func (b *Bus) AdapterIDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.adapters))
	for id := range b.adapters {
		ids = append(ids, id)
	}
	return ids
}

// MiddlewareCount returns the number of middlewares wired into the chain,
// for status reporting.
func (b *Bus) MiddlewareCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.middleware)
}

// AddInboundHandler registers a callback for every message that clears the
// middleware chain — the chat backend's sole ingress extension point.
func (b *Bus) AddInboundHandler(fn InboundHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
}

func (b *Bus) snapshotMiddleware() []Middleware {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Middleware, len(b.middleware))
	copy(out, b.middleware)
	return out
}

func (b *Bus) snapshotHandlers() []InboundHandler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]InboundHandler, len(b.handlers))
	copy(out, b.handlers)
	return out
}

// ProcessInbound runs msg through the middleware chain in registered order,
// short-circuiting on any status other than continue, and on success invokes
// every registered inbound handler synchronously.
func (b *Bus) ProcessInbound(ctx context.Context, msg *message.Inbound) *Context {
	pctx := NewContext(msg.MessageID, msg.ChannelID)

	for _, mw := range b.snapshotMiddleware() {
		pctx = runInboundSafely(ctx, mw, msg, pctx)
		if pctx.Status != StatusContinue {
			return pctx
		}
	}

	for _, h := range b.snapshotHandlers() {
		invokeHandlerSafely(h, msg)
	}
	return pctx
}

func runInboundSafely(ctx context.Context, mw Middleware, msg *message.Inbound, pctx *Context) (result *Context) {
	defer func() {
		if r := recover(); r != nil {
			pctx.Status = StatusError
			pctx.Err = fmt.Errorf("middleware %s panicked: %v", mw.Name(), r)
			result = pctx
		}
	}()
	return mw.ProcessInbound(ctx, msg, pctx)
}

func invokeHandlerSafely(h InboundHandler, msg *message.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("bus: inbound handler panicked: %v", r)
		}
	}()
	h(msg)
}

// SendOutbound runs msg through the outbound chain and, if it survives,
// dispatches to the registered adapter for msg.ChannelID.
func (b *Bus) SendOutbound(ctx context.Context, msg *message.Outbound) *Context {
	syntheticID := fmt.Sprintf("out_%s_%d", msg.ChannelID, ids.NowMs()/1000)
	pctx := NewContext(syntheticID, msg.ChannelID)

	for _, mw := range b.snapshotMiddleware() {
		pctx = runOutboundSafely(ctx, mw, msg, pctx)
		if pctx.Status != StatusContinue {
			return pctx
		}
	}

	adapter, ok := b.Adapter(msg.ChannelID)
	if !ok {
		pctx.Status = StatusError
		pctx.Err = fmt.Errorf("bus: no adapter registered for channel %q", msg.ChannelID)
		return pctx
	}
	if err := adapter.Send(ctx, msg); err != nil {
		pctx.Status = StatusError
		pctx.Err = err
		return pctx
	}
	return pctx
}

func runOutboundSafely(ctx context.Context, mw Middleware, msg *message.Outbound, pctx *Context) (result *Context) {
	defer func() {
		if r := recover(); r != nil {
			pctx.Status = StatusError
			pctx.Err = fmt.Errorf("middleware %s panicked: %v", mw.Name(), r)
			result = pctx
		}
	}()
	return mw.ProcessOutbound(ctx, msg, pctx)
}
