package channels

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"

	"github.com/kafgate/kafgate/internal/message"
)

// TriggerPolicy controls which Slack messages an adapter reacts to.
type TriggerPolicy string

const (
	TriggerDMOnly       TriggerPolicy = "dm_only"
	TriggerMentionOrDM  TriggerPolicy = "mention_or_dm"
	TriggerAllMessages  TriggerPolicy = "all_messages"
)

const slackIdempotencyCapacity = 10_000

// Slack adapts Slack's Events API. Signature verification and the
// url_verification echo happen synchronously in the webhook handler;
// ParseEvent is the async parser the handler dispatches to afterward.
type Slack struct {
	BaseAdapter
	API           *slack.Client
	SigningSecret string
	BotUserID     string
	Trigger       TriggerPolicy

	mu      sync.Mutex
	seen    map[string]struct{}
	seenFIFO []string
}

// NewSlack builds a Slack adapter registered under channelID.
func NewSlack(channelID, botToken, signingSecret, botUserID string, trigger TriggerPolicy) *Slack {
	return &Slack{
		BaseAdapter:   BaseAdapter{ID: channelID},
		API:           slack.New(botToken),
		SigningSecret: signingSecret,
		BotUserID:     botUserID,
		Trigger:       trigger,
		seen:          map[string]struct{}{},
	}
}

// VerifySlackSignature implements Slack's v0 HMAC-SHA256 scheme over
// "v0:{timestamp}:{body}", rejecting timestamps more than 5 minutes away
// from now. An empty signingSecret skips verification and returns true.
func VerifySlackSignature(signingSecret, timestamp string, body []byte, signature string) bool {
	if signingSecret == "" {
		return true
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	if d := time.Since(time.Unix(ts, 0)); d > 5*time.Minute || d < -5*time.Minute {
		return false
	}
	base := "v0:" + timestamp + ":" + string(body)
	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(base))
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// URLVerificationChallenge returns (challenge, true) if payload is a Slack
// url_verification request, for the webhook handler's synchronous echo.
func URLVerificationChallenge(payload map[string]any) (string, bool) {
	if payload["type"] != "url_verification" {
		return "", false
	}
	challenge, _ := payload["challenge"].(string)
	return challenge, challenge != ""
}

// slackEvent is the subset of a Slack inner event this adapter reacts to.
type slackEvent struct {
	Type       string
	Channel    string
	User       string
	BotID      string
	Subtype    string
	Text       string
	TS         string
	ThreadTS   string
	EventTS    string
	ClientMsgID string
	ChannelType string
}

func parseSlackEvent(raw map[string]any) slackEvent {
	str := func(k string) string {
		v, _ := raw[k].(string)
		return v
	}
	return slackEvent{
		Type:        str("type"),
		Channel:     str("channel"),
		User:        str("user"),
		BotID:       str("bot_id"),
		Subtype:     str("subtype"),
		Text:        str("text"),
		TS:          str("ts"),
		ThreadTS:    str("thread_ts"),
		EventTS:     str("event_ts"),
		ClientMsgID: str("client_msg_id"),
		ChannelType: str("channel_type"),
	}
}

// ParseEvent converts a verified, already-decoded event_callback payload
// into an Inbound message, or (nil, nil) if it should be ignored per the
// adapter's trigger policy, bot-loop protection, or idempotency.
func (s *Slack) ParseEvent(payload map[string]any) (*message.Inbound, error) {
	if payload["type"] != "event_callback" {
		return nil, nil
	}
	rawEvent, _ := payload["event"].(map[string]any)
	if rawEvent == nil {
		return nil, fmt.Errorf("slack: event_callback missing event")
	}
	ev := parseSlackEvent(rawEvent)

	isMention := ev.Type == "app_mention"
	if !isMention && ev.Type != "message" {
		return nil, nil
	}
	if ev.BotID != "" || ev.Subtype == "bot_message" {
		return nil, nil
	}

	isDM := strings.HasPrefix(ev.ChannelType, "im") || strings.HasPrefix(strings.ToUpper(ev.Channel), "D")
	switch s.Trigger {
	case TriggerDMOnly:
		if !isDM {
			return nil, nil
		}
	case TriggerMentionOrDM:
		if !isDM && !isMention {
			return nil, nil
		}
	}

	eventID, _ := payload["event_id"].(string)
	messageID := firstNonEmptyStr(eventID, ev.ClientMsgID, fmt.Sprintf("%s_%s_%s", ev.TS, ev.Channel, ev.User))
	if s.isDuplicate(messageID) {
		return nil, nil
	}

	conversationKey := ev.Channel
	if ev.ThreadTS != "" {
		conversationKey = ev.Channel + ":" + ev.ThreadTS
	}

	tsFloat := ev.TS
	if tsFloat == "" {
		tsFloat = ev.EventTS
	}
	ts := parseSlackTimestamp(tsFloat)

	in := message.NewInbound(s.ID, ev.User, conversationKey, messageID, message.TypeText, ts)
	in.Text = ev.Text
	return in, nil
}

func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func firstNonEmptyStr(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// isDuplicate checks and records messageID against the bounded LRU-style
// idempotency set, pruning the oldest entry once capacity is exceeded.
func (s *Slack) isDuplicate(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[messageID]; ok {
		return true
	}
	s.seen[messageID] = struct{}{}
	s.seenFIFO = append(s.seenFIFO, messageID)
	if len(s.seenFIFO) > slackIdempotencyCapacity {
		oldest := s.seenFIFO[0]
		s.seenFIFO = s.seenFIFO[1:]
		delete(s.seen, oldest)
	}
	return false
}

// SplitConversationKey splits a Slack conversation_key back into
// (channel, thread_ts). thread_ts is empty for root-message conversations.
func SplitConversationKey(key string) (channel, threadTS string) {
	parts := strings.SplitN(key, ":", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

// Send posts text via the Slack Web API, threading when ConversationKey
// carries a thread_ts component.
func (s *Slack) Send(ctx context.Context, msg *message.Outbound) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	channel, threadTS := SplitConversationKey(msg.ConversationKey)

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	_, _, err := s.API.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

// DecodePayload unmarshals a Slack webhook body into a generic map, the
// shape both the url_verification check and ParseEvent operate on.
func DecodePayload(body []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("slack: decode payload: %w", err)
	}
	return payload, nil
}
