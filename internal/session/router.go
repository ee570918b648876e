// Package session resolves inbound messages to the frozen v1 session
// lookup key format. It does not create or mutate sessions — that is
// internal/store's job — it only computes and parses the scope key.
package session

import (
	"fmt"
	"strings"

	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/registry"
)

const titleHintMaxLen = 50

// ResolvedContext is what Router.Resolve hands back to the caller.
type ResolvedContext struct {
	Manifest   registry.Manifest
	LookupKey  string
	TitleHint  string
}

// Router resolves inbound messages against the channel registry. It is
// stateless beyond holding a reference to the registry.
type Router struct {
	Registry *registry.Registry
}

// NewRouter builds a Router over reg.
func NewRouter(reg *registry.Registry) *Router {
	return &Router{Registry: reg}
}

// Resolve looks up msg's channel manifest, computes its scope's lookup key,
// and derives a best-effort title hint.
func (r *Router) Resolve(msg *message.Inbound) (ResolvedContext, error) {
	m, ok := r.Registry.GetManifest(msg.ChannelID)
	if !ok {
		return ResolvedContext{}, fmt.Errorf("session: no manifest registered for channel %q", msg.ChannelID)
	}
	key := ComputeLookupKey(m.SessionScope, msg.ChannelID, msg.UserKey, msg.ConversationKey)
	return ResolvedContext{
		Manifest:  m,
		LookupKey: key,
		TitleHint: titleHint(msg.Text),
	}, nil
}

// ComputeLookupKey builds the frozen v1 session lookup key:
//   scope=user:              "{channel_id}:{user_key}"
//   scope=user_conversation:  "{channel_id}:{user_key}:{conversation_key}"
func ComputeLookupKey(scope registry.SessionScope, channelID, userKey, conversationKey string) string {
	if scope == registry.ScopeUserConversation {
		return fmt.Sprintf("%s:%s:%s", channelID, userKey, conversationKey)
	}
	return fmt.Sprintf("%s:%s", channelID, userKey)
}

// ParseLookupKey splits a v1 lookup key back into its components. A key
// with two colon-separated parts is scope=user; three parts is
// scope=user_conversation. Anything else is an error — the format is
// frozen and never grows a fourth field.
func ParseLookupKey(key string) (channelID, userKey, conversationKey string, err error) {
	parts := strings.SplitN(key, ":", 3)
	switch len(parts) {
	case 2:
		return parts[0], parts[1], "", nil
	case 3:
		return parts[0], parts[1], parts[2], nil
	default:
		return "", "", "", fmt.Errorf("session: malformed lookup key %q", key)
	}
}

// titleHint derives a 50-char ellipsis preview from message text, best
// effort: empty text yields an empty hint.
func titleHint(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}
	runes := []rune(trimmed)
	if len(runes) <= titleHintMaxLen {
		return trimmed
	}
	return string(runes[:titleHintMaxLen-1]) + "…"
}
