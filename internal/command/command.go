// Package command implements the gateway's built-in "/session" and "/help"
// commands. It never performs provider I/O directly — every response is an
// OutboundMessage the caller enqueues through the bus.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/store"
)

const (
	defaultListLimit = 10
	minListLimit     = 1
	maxListLimit     = 50
)

const helpText = `Available commands:
  /session new          start a new session
  /session id            show the active session
  /session list [N]      list recent sessions (default 10, max 50)
  /session use <id>       switch the active session
  /session close          archive the active session
  /help                   show this message`

// IsCommand reports whether stripped text begins with "/".
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// Processor dispatches "/session" and "/help" commands against the
// session store, on behalf of a single (channel_id, user_key, scope).
type Processor struct {
	Store *store.Store
}

// NewProcessor builds a Processor backed by s.
func NewProcessor(s *store.Store) *Processor {
	return &Processor{Store: s}
}

// Process splits text on whitespace (max 3 parts) and dispatches. The
// returned Outbound always carries metadata.command set to the matched
// command name.
func (p *Processor) Process(channelID, userKey, conversationKey, text string) *message.Outbound {
	parts := strings.SplitN(strings.TrimSpace(text), " ", 3)
	name := parts[0]

	switch name {
	case "/session":
		return p.session(channelID, userKey, conversationKey, parts[1:])
	case "/help":
		return reply(channelID, userKey, conversationKey, "help", helpText)
	default:
		return reply(channelID, userKey, conversationKey, "unknown",
			fmt.Sprintf("Unknown command %q. Send /help for a list of commands.", name))
	}
}

func (p *Processor) session(channelID, userKey, conversationKey string, args []string) *message.Outbound {
	if len(args) == 0 {
		return reply(channelID, userKey, conversationKey, "session",
			"Usage: /session new|id|list [N]|use <id>|close")
	}

	switch args[0] {
	case "new":
		return p.sessionNew(channelID, userKey, conversationKey)
	case "id":
		return p.sessionID(channelID, userKey, conversationKey)
	case "list":
		var n string
		if len(args) > 1 {
			n = args[1]
		}
		return p.sessionList(channelID, userKey, n)
	case "use":
		if len(args) < 2 {
			return reply(channelID, userKey, conversationKey, "session", "Usage: /session use <id>")
		}
		return p.sessionUse(channelID, userKey, conversationKey, args[1])
	case "close":
		return p.sessionClose(channelID, userKey, conversationKey)
	default:
		return reply(channelID, userKey, conversationKey, "session",
			fmt.Sprintf("Unknown /session subcommand %q. Send /help for a list of commands.", args[0]))
	}
}

func (p *Processor) sessionNew(channelID, userKey, conversationKey string) *message.Outbound {
	sess, err := p.Store.CreateSession(channelID, userKey, conversationKey, "user", "")
	if err != nil {
		return reply(channelID, userKey, conversationKey, "session_new", fmt.Sprintf("Could not create a session: %v", err))
	}
	return reply(channelID, userKey, conversationKey, "session_new", fmt.Sprintf("✅ New session created: %s", sess.SessionID))
}

func (p *Processor) sessionID(channelID, userKey, conversationKey string) *message.Outbound {
	sess, err := p.Store.ActiveSession(channelID, userKey, conversationKey)
	if err != nil {
		return reply(channelID, userKey, conversationKey, "session_id", fmt.Sprintf("Could not look up the active session: %v", err))
	}
	if sess == nil {
		return reply(channelID, userKey, conversationKey, "session_id", "No active session. Send /session new to start one.")
	}
	return reply(channelID, userKey, conversationKey, "session_id", fmt.Sprintf(
		"Active session: %s (created_at=%d, status=%s, message_count=%d)",
		sess.SessionID, sess.CreatedAt, sess.Status, sess.MessageCount,
	))
}

func (p *Processor) sessionList(channelID, userKey, nArg string) *message.Outbound {
	limit := defaultListLimit
	if nArg != "" {
		if parsed, err := strconv.Atoi(nArg); err == nil {
			limit = parsed
		}
	}
	if limit < minListLimit {
		limit = minListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	sessions, err := p.Store.ListSessions(channelID, userKey, limit)
	if err != nil {
		return reply(channelID, userKey, "", "session_list", fmt.Sprintf("Could not list sessions: %v", err))
	}
	active, _ := p.Store.ActiveSession(channelID, userKey, "")

	if len(sessions) == 0 {
		return reply(channelID, userKey, "", "session_list", "No sessions yet. Send /session new to start one.")
	}

	var b strings.Builder
	b.WriteString("Recent sessions:\n")
	for _, sess := range sessions {
		marker := "  "
		if active != nil && active.SessionID == sess.SessionID {
			marker = "➤ "
		}
		fmt.Fprintf(&b, "%s%s (%s, %d messages)\n", marker, sess.SessionID, sess.Status, sess.MessageCount)
	}
	return reply(channelID, userKey, "", "session_list", strings.TrimRight(b.String(), "\n"))
}

func (p *Processor) sessionUse(channelID, userKey, conversationKey, targetID string) *message.Outbound {
	if err := p.Store.SwitchSession(channelID, userKey, conversationKey, targetID); err != nil {
		return reply(channelID, userKey, conversationKey, "session_use", fmt.Sprintf("Could not switch session: %v", err))
	}
	return reply(channelID, userKey, conversationKey, "session_use", fmt.Sprintf("✅ Switched to session %s", targetID))
}

func (p *Processor) sessionClose(channelID, userKey, conversationKey string) *message.Outbound {
	active, err := p.Store.ActiveSession(channelID, userKey, conversationKey)
	if err != nil {
		return reply(channelID, userKey, conversationKey, "session_close", fmt.Sprintf("Could not look up the active session: %v", err))
	}
	if active == nil {
		return reply(channelID, userKey, conversationKey, "session_close", "No active session to close.")
	}
	if err := p.Store.ArchiveSession(active.SessionID); err != nil {
		return reply(channelID, userKey, conversationKey, "session_close", fmt.Sprintf("Could not close session: %v", err))
	}
	return reply(channelID, userKey, conversationKey, "session_close", fmt.Sprintf("✅ Session %s archived", active.SessionID))
}

func reply(channelID, userKey, conversationKey, command, text string) *message.Outbound {
	out := message.NewOutbound(channelID, userKey, conversationKey, message.TypeText)
	out.Text = text
	out.Metadata["command"] = command
	return out
}
