// Package main is channelbridge, a standalone companion process for
// kafgate's Slack channel: it holds the Socket Mode connection and the
// slash-command/interaction webhooks, and relays parsed events into the
// gateway's bus over a single trusted HTTP endpoint. Running Slack
// ingestion out-of-process means the gateway itself never needs a public
// webhook URL for workspaces that prefer Socket Mode.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/kafgate/kafgate/internal/channels"
)

type config struct {
	ListenAddr string

	GatewayBase  string
	GatewayToken string

	SlackBotToken      string
	SlackAppToken      string
	SlackAccountID     string
	SlackReplyMode     string
	SlackBotUserID     string
	SlackSigningSecret string
	SlackAPIBase       string

	StatePath string
}

type bridge struct {
	cfg    config
	client *http.Client

	inboundMu  sync.Mutex
	inboundSeen map[string]time.Time
	inboundTTL  time.Duration

	replyMu   sync.Mutex
	replySeen map[string]bool

	metricsMu sync.RWMutex
	metrics   bridgeMetrics
}

type bridgeMetrics struct {
	StartedAt time.Time `json:"started_at"`

	InboundForwarded int `json:"inbound_forwarded"`
	OutboundSent     int `json:"outbound_sent"`
	InboundDeduped   int `json:"inbound_deduped"`

	InboundForwardErrors int    `json:"inbound_forward_errors"`
	OutboundErrors       int    `json:"outbound_errors"`
	LastError            string `json:"last_error,omitempty"`
	LastErrorAt          string `json:"last_error_at,omitempty"`
}

type bridgeState struct {
	InboundSeen map[string]time.Time `json:"inbound_seen,omitempty"`
}

func main() {
	cfg := loadConfig()
	b := &bridge{
		cfg:         cfg,
		client:      &http.Client{Timeout: 20 * time.Second},
		inboundSeen: map[string]time.Time{},
		inboundTTL:  10 * time.Minute,
		replySeen:   map[string]bool{},
		metrics:     bridgeMetrics{StartedAt: time.Now().UTC()},
	}
	if err := b.loadState(); err != nil {
		log.Printf("channelbridge state load warning: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.HandleFunc("/status", b.handleStatus)
	mux.HandleFunc("/slack/events", b.handleSlackEvents)
	mux.HandleFunc("/slack/commands", b.handleSlackCommands)
	mux.HandleFunc("/slack/interactions", b.handleSlackInteractions)
	mux.HandleFunc("/slack/outbound", b.handleSlackOutbound)
	mux.HandleFunc("/slack/resolve/users", b.handleSlackResolveUsers)
	mux.HandleFunc("/slack/resolve/channels", b.handleSlackResolveChannels)
	mux.HandleFunc("/slack/probe", b.handleSlackProbe)
	b.startSlackSocketMode()

	log.Printf("channelbridge listening on %s", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatalf("channelbridge failed: %v", err)
	}
}

func loadConfig() config {
	defaultState := ".kafgate/channelbridge/state.json"
	if home, err := os.UserHomeDir(); err == nil {
		defaultState = home + "/" + defaultState
	}
	return config{
		ListenAddr: strings.TrimSpace(getEnvDefault("CHANNEL_BRIDGE_ADDR", ":18892")),

		GatewayBase:  strings.TrimSpace(getEnvDefault("KAFGATE_BASE_URL", "http://127.0.0.1:18890")),
		GatewayToken: strings.TrimSpace(os.Getenv("KAFGATE_ADMIN_TOKEN")),

		SlackBotToken:      strings.TrimSpace(os.Getenv("SLACK_BOT_TOKEN")),
		SlackAppToken:      strings.TrimSpace(os.Getenv("SLACK_APP_TOKEN")),
		SlackAccountID:     strings.TrimSpace(getEnvDefault("SLACK_ACCOUNT_ID", "default")),
		SlackReplyMode:     strings.TrimSpace(getEnvDefault("SLACK_REPLY_MODE", "all")),
		SlackBotUserID:     strings.TrimSpace(os.Getenv("SLACK_BOT_USER_ID")),
		SlackSigningSecret: strings.TrimSpace(os.Getenv("SLACK_SIGNING_SECRET")),
		SlackAPIBase:       strings.TrimSpace(getEnvDefault("SLACK_API_BASE", "https://slack.com/api")),

		StatePath: strings.TrimSpace(getEnvDefault("CHANNEL_BRIDGE_STATE", defaultState)),
	}
}

func getEnvDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func (b *bridge) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	b.metricsMu.RLock()
	metrics := b.metrics
	b.metricsMu.RUnlock()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ok":                   true,
		"metrics":              metrics,
		"inbound_dedupe_cache": b.inboundCacheSize(),
	})
}

func (b *bridge) inboundCacheSize() int {
	b.inboundMu.Lock()
	defer b.inboundMu.Unlock()
	b.pruneInboundSeenLocked(time.Now())
	return len(b.inboundSeen)
}

func (b *bridge) noteInboundForward(success bool, err error) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	if success {
		return
	}
	b.metrics.InboundForwardErrors++
	if err != nil {
		b.metrics.LastError = err.Error()
		b.metrics.LastErrorAt = time.Now().UTC().Format(time.RFC3339)
	}
}

func (b *bridge) noteOutbound(success bool, err error) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	if success {
		b.metrics.OutboundSent++
		return
	}
	b.metrics.OutboundErrors++
	if err != nil {
		b.metrics.LastError = err.Error()
		b.metrics.LastErrorAt = time.Now().UTC().Format(time.RFC3339)
	}
}

func (b *bridge) noteInboundDeduped() {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	b.metrics.InboundDeduped++
}

func (b *bridge) handleSlackEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := verifySlackSignature(body, r, b.cfg.SlackSigningSecret); err != nil {
		http.Error(w, "invalid slack signature", http.StatusUnauthorized)
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	resp, err := b.processSlackEventsPayload(payload)
	if err != nil {
		http.Error(w, "forward failed", http.StatusBadGateway)
		return
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *bridge) handleSlackCommands(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := verifySlackSignature(body, r, b.cfg.SlackSigningSecret); err != nil {
		http.Error(w, "invalid slack signature", http.StatusUnauthorized)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		http.Error(w, "invalid slash command", http.StatusBadRequest)
		return
	}
	if err := b.forwardSlackSlashCommand(cmd); err != nil {
		http.Error(w, "forward failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"response_type": "ephemeral", "text": "accepted"})
}

func (b *bridge) handleSlackInteractions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	if err := verifySlackSignature(body, r, b.cfg.SlackSigningSecret); err != nil {
		http.Error(w, "invalid slack signature", http.StatusUnauthorized)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	cb, err := slack.InteractionCallbackParse(r)
	if err != nil {
		http.Error(w, "invalid interaction payload", http.StatusBadRequest)
		return
	}
	if err := b.forwardSlackInteraction(cb); err != nil {
		http.Error(w, "forward failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func verifySlackSignature(body []byte, r *http.Request, secret string) error {
	ts := r.Header.Get("X-Slack-Request-Timestamp")
	sig := r.Header.Get("X-Slack-Signature")
	if !channels.VerifySlackSignature(secret, ts, body, sig) {
		return errors.New("signature mismatch")
	}
	return nil
}

func (b *bridge) processSlackEventsPayload(payload map[string]any) (map[string]any, error) {
	switch strings.TrimSpace(asString(payload["type"])) {
	case "url_verification":
		return map[string]any{"challenge": asString(payload["challenge"])}, nil
	case "event_callback":
		if eventID := strings.TrimSpace(asString(payload["event_id"])); eventID != "" {
			if b.seenInboundEvent("slack:event:"+eventID, time.Now()) {
				b.noteInboundDeduped()
				return map[string]any{"ok": true, "deduped": true}, nil
			}
		}
		event, _ := payload["event"].(map[string]any)
		if event == nil {
			return map[string]any{"ok": true}, nil
		}
		in, ok := normalizeSlackInboundEvent(event, b.cfg.SlackBotUserID)
		if !ok {
			return map[string]any{"ok": true}, nil
		}
		if err := b.forwardSlackInbound(in.senderID, in.channelID, in.threadID, in.messageID, in.text); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil
	default:
		return map[string]any{"ok": true}, nil
	}
}

type slackInbound struct {
	senderID  string
	channelID string
	threadID  string
	messageID string
	text      string
}

func normalizeSlackInboundEvent(event map[string]any, botUserID string) (slackInbound, bool) {
	eventType := strings.TrimSpace(asString(event["type"]))
	if eventType == "app_mention" {
		channelID := strings.TrimSpace(asString(event["channel"]))
		senderID := strings.TrimSpace(asString(event["user"]))
		if channelID == "" || senderID == "" {
			return slackInbound{}, false
		}
		return slackInbound{
			senderID:  senderID,
			channelID: channelID,
			threadID:  strings.TrimSpace(asString(event["thread_ts"])),
			messageID: firstNonEmpty(asString(event["ts"]), asString(event["event_ts"])),
			text:      strings.TrimSpace(asString(event["text"])),
		}, true
	}
	if eventType != "message" {
		return slackInbound{}, false
	}

	subtype := strings.TrimSpace(asString(event["subtype"]))
	if strings.TrimSpace(asString(event["bot_id"])) != "" || subtype == "bot_message" {
		return slackInbound{}, false
	}

	channelID := strings.TrimSpace(asString(event["channel"]))
	senderID := strings.TrimSpace(asString(event["user"]))
	if channelID == "" || senderID == "" {
		return slackInbound{}, false
	}

	text := strings.TrimSpace(asString(event["text"]))
	if subtype == "file_share" && text == "" {
		text = "[file shared]"
	}
	if text == "" {
		return slackInbound{}, false
	}

	return slackInbound{
		senderID:  senderID,
		channelID: channelID,
		threadID:  strings.TrimSpace(asString(event["thread_ts"])),
		messageID: firstNonEmpty(asString(event["ts"]), asString(event["event_ts"])),
		text:      text,
	}, true
}

func (b *bridge) forwardSlackInbound(senderID, channelID, threadID, messageID, text string) error {
	channelID = strings.TrimSpace(channelID)
	senderID = strings.TrimSpace(senderID)
	if channelID == "" || senderID == "" {
		return nil
	}
	if messageID != "" && b.seenInboundEvent("slack:msg:"+channelID+":"+messageID, time.Now()) {
		b.noteInboundDeduped()
		return nil
	}
	err := b.postInbound(map[string]string{
		"channel_id":       "slack",
		"user_key":         senderID,
		"conversation_key": strings.TrimSpace(firstNonEmpty(threadID, channelID)),
		"message_id":       strings.TrimSpace(messageID),
		"text":             text,
	})
	if err != nil {
		b.noteInboundForward(false, err)
		log.Printf("slack inbound forward failed: %v", err)
		return err
	}
	b.metricsMu.Lock()
	b.metrics.InboundForwarded++
	b.metricsMu.Unlock()
	return nil
}

func (b *bridge) forwardSlackSlashCommand(cmd slack.SlashCommand) error {
	content := strings.TrimSpace(strings.TrimSpace(cmd.Command) + " " + strings.TrimSpace(cmd.Text))
	return b.forwardSlackInbound(cmd.UserID, cmd.ChannelID, "", cmd.TriggerID, content)
}

func (b *bridge) forwardSlackInteraction(cb slack.InteractionCallback) error {
	channelID := strings.TrimSpace(cb.Channel.ID)
	if channelID == "" {
		channelID = strings.TrimSpace(cb.Container.ChannelID)
	}
	threadID := strings.TrimSpace(cb.Container.ThreadTs)
	actionID := strings.TrimSpace(cb.ActionID)
	actionVal := strings.TrimSpace(cb.Value)
	if len(cb.ActionCallback.BlockActions) > 0 {
		if actionID == "" {
			actionID = strings.TrimSpace(cb.ActionCallback.BlockActions[0].ActionID)
		}
		if actionVal == "" {
			actionVal = strings.TrimSpace(cb.ActionCallback.BlockActions[0].Value)
		}
	}
	content := strings.TrimSpace("interactive " + actionID + " " + actionVal)
	if content == "interactive" {
		content = "interactive " + strings.TrimSpace(string(cb.Type))
	}
	messageID := firstNonEmpty(cb.ActionTs, cb.TriggerID)
	return b.forwardSlackInbound(cb.User.ID, channelID, threadID, messageID, content)
}

func (b *bridge) startSlackSocketMode() {
	appToken := strings.TrimSpace(b.cfg.SlackAppToken)
	if appToken == "" {
		return
	}
	api, err := b.slackClientWithAppToken(appToken)
	if err != nil {
		log.Printf("slack socket mode disabled: %v", err)
		return
	}
	client := socketmode.New(api)
	go b.runSlackSocketMode(client)
}

func (b *bridge) runSlackSocketMode(client *socketmode.Client) {
	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				if evt.Request != nil {
					client.Ack(*evt.Request)
				}
				ev, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok || ev.Type != slackevents.CallbackEvent {
					continue
				}
				switch in := ev.InnerEvent.Data.(type) {
				case *slackevents.MessageEvent:
					if in == nil {
						continue
					}
					_ = b.forwardSlackInbound(in.User, in.Channel, in.ThreadTimeStamp, in.TimeStamp, in.Text)
				case *slackevents.AppMentionEvent:
					if in == nil {
						continue
					}
					_ = b.forwardSlackInbound(in.User, in.Channel, in.ThreadTimeStamp, in.TimeStamp, in.Text)
				}
			case socketmode.EventTypeSlashCommand:
				if evt.Request != nil {
					client.Ack(*evt.Request, map[string]any{"response_type": "ephemeral", "text": "accepted"})
				}
				cmd, ok := evt.Data.(slack.SlashCommand)
				if ok {
					_ = b.forwardSlackSlashCommand(cmd)
				}
			case socketmode.EventTypeInteractive:
				if evt.Request != nil {
					client.Ack(*evt.Request)
				}
				cb, ok := evt.Data.(slack.InteractionCallback)
				if ok {
					_ = b.forwardSlackInteraction(cb)
				}
			}
		}
	}()
	client.Run()
}

func (b *bridge) handleSlackOutbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Channel   string         `json:"channel"`
		Thread    string         `json:"thread"`
		Text      string         `json:"text"`
		MediaURLs []string       `json:"media_urls"`
		Card      map[string]any `json:"card"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Channel) == "" {
		http.Error(w, "channel required", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" && len(req.MediaURLs) == 0 && len(req.Card) == 0 {
		http.Error(w, "text, media_urls or card required", http.StatusBadRequest)
		return
	}
	channelID, err := b.resolveSlackChannelID(req.Channel)
	if err != nil {
		b.noteOutbound(false, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	threadID := b.resolveReplyThread(channelID, req.Thread)

	if len(req.MediaURLs) > 0 {
		if err := b.slackUploadMedia(channelID, threadID, req.MediaURLs[0], req.Text); err != nil {
			b.noteOutbound(false, err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	} else if len(req.Card) > 0 {
		if err := b.slackPostCard(channelID, threadID, req.Text, req.Card); err != nil {
			b.noteOutbound(false, err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
	} else if err := b.slackPostMessage(channelID, threadID, req.Text); err != nil {
		b.noteOutbound(false, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	b.noteOutbound(true, nil)
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
}

func (b *bridge) handleSlackResolveUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Entries []string `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	out, err := b.slackResolveUsers(req.Entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": out})
}

func (b *bridge) handleSlackResolveChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Entries []string `json:"entries"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	out, err := b.slackResolveChannels(req.Entries)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": out})
}

func (b *bridge) handleSlackProbe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	api, err := b.slackClient()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	auth, err := api.AuthTestContext(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "team": auth.Team, "user": auth.User})
}

func (b *bridge) resolveSlackChannelID(chatID string) (string, error) {
	chatID = normalizeSlackTarget(chatID)
	if chatID == "" {
		return "", errors.New("empty channel")
	}
	if strings.HasPrefix(chatID, "C") || strings.HasPrefix(chatID, "G") || strings.HasPrefix(chatID, "D") {
		return chatID, nil
	}
	if !strings.HasPrefix(chatID, "U") {
		return chatID, nil
	}
	api, err := b.slackClient()
	if err != nil {
		return "", err
	}
	var channelID string
	err = withRetry(3, 200*time.Millisecond, func() (bool, error) {
		ch, _, _, err := api.OpenConversationContext(context.Background(), &slack.OpenConversationParameters{Users: []string{chatID}})
		if err == nil && ch != nil && strings.TrimSpace(ch.ID) != "" {
			channelID = strings.TrimSpace(ch.ID)
			return false, nil
		}
		return b.slackRetryDecision(err)
	})
	if err != nil {
		return "", err
	}
	return channelID, nil
}

func normalizeSlackTarget(v string) string {
	s := strings.TrimSpace(v)
	l := strings.ToLower(s)
	switch {
	case strings.HasPrefix(l, "user:"):
		return strings.TrimSpace(s[len("user:"):])
	case strings.HasPrefix(l, "channel:"):
		return strings.TrimSpace(s[len("channel:"):])
	default:
		return s
	}
}

func (b *bridge) slackResolveUsers(entries []string) ([]map[string]any, error) {
	users, err := b.slackListUsers()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, raw := range entries {
		q := strings.TrimSpace(raw)
		if q == "" {
			out = append(out, map[string]any{"input": raw, "resolved": false, "note": "empty input"})
			continue
		}
		qNorm := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(q), "user:"), "@")
		if strings.HasPrefix(strings.ToUpper(q), "U") {
			out = append(out, map[string]any{"input": raw, "resolved": true, "id": strings.ToUpper(q)})
			continue
		}
		resolved := false
		id, name := "", ""
		for _, u := range users {
			uid := strings.TrimSpace(asString(u["id"]))
			uname := strings.ToLower(strings.TrimSpace(asString(u["name"])))
			real := strings.ToLower(strings.TrimSpace(asString(u["real_name"])))
			display := ""
			if prof, ok := u["profile"].(map[string]any); ok {
				display = strings.ToLower(strings.TrimSpace(asString(prof["display_name"])))
			}
			if qNorm == uname || qNorm == real || qNorm == display {
				resolved = true
				id = uid
				name = asString(u["name"])
				break
			}
		}
		entry := map[string]any{"input": raw, "resolved": resolved}
		if resolved {
			entry["id"] = id
			if name != "" {
				entry["name"] = name
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (b *bridge) slackResolveChannels(entries []string) ([]map[string]any, error) {
	chs, err := b.slackListChannels()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(entries))
	for _, raw := range entries {
		q := strings.TrimSpace(raw)
		if q == "" {
			out = append(out, map[string]any{"input": raw, "resolved": false, "note": "empty input"})
			continue
		}
		qNorm := strings.TrimPrefix(strings.TrimPrefix(strings.ToLower(q), "channel:"), "#")
		if strings.HasPrefix(strings.ToUpper(q), "C") || strings.HasPrefix(strings.ToUpper(q), "G") {
			out = append(out, map[string]any{"input": raw, "resolved": true, "id": strings.ToUpper(q)})
			continue
		}
		resolved := false
		id, name := "", ""
		for _, c := range chs {
			cid := strings.TrimSpace(asString(c["id"]))
			cname := strings.ToLower(strings.TrimSpace(asString(c["name"])))
			if qNorm == cname {
				resolved = true
				id = cid
				name = asString(c["name"])
				break
			}
		}
		entry := map[string]any{"input": raw, "resolved": resolved}
		if resolved {
			entry["id"] = id
			if name != "" {
				entry["name"] = name
			}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (b *bridge) slackListUsers() ([]map[string]any, error) {
	api, err := b.slackClient()
	if err != nil {
		return nil, err
	}
	users, err := api.GetUsersContext(context.Background(), slack.GetUsersOptionLimit(200))
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(users))
	for _, u := range users {
		out = append(out, map[string]any{
			"id": u.ID, "name": u.Name, "real_name": u.RealName,
			"profile": map[string]any{"display_name": u.Profile.DisplayName},
		})
	}
	return out, nil
}

func (b *bridge) slackListChannels() ([]map[string]any, error) {
	api, err := b.slackClient()
	if err != nil {
		return nil, err
	}
	all := make([]map[string]any, 0)
	cursor := ""
	for {
		chs, next, err := api.GetConversationsContext(context.Background(), &slack.GetConversationsParameters{
			Cursor: cursor, Limit: 200, Types: []string{"public_channel", "private_channel"},
		})
		if err != nil {
			return nil, err
		}
		for _, ch := range chs {
			all = append(all, map[string]any{"id": ch.ID, "name": ch.Name})
		}
		cursor = strings.TrimSpace(next)
		if cursor == "" {
			break
		}
	}
	return all, nil
}

func (b *bridge) slackPostMessage(channelID, threadID, text string) error {
	api, err := b.slackClient()
	if err != nil {
		return err
	}
	return withRetry(3, 200*time.Millisecond, func() (bool, error) {
		opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
		if ts := strings.TrimSpace(threadID); ts != "" {
			opts = append(opts, slack.MsgOptionTS(ts))
		}
		_, _, err := api.PostMessageContext(context.Background(), channelID, opts...)
		return b.slackRetryDecision(err)
	})
}

func (b *bridge) slackPostCard(channelID, threadID, text string, card map[string]any) error {
	api, err := b.slackClient()
	if err != nil {
		return err
	}
	var blocks slack.Blocks
	if rawBlocks, ok := card["blocks"]; ok && rawBlocks != nil {
		blob, _ := json.Marshal(rawBlocks)
		_ = json.Unmarshal(blob, &blocks)
	}
	return withRetry(3, 200*time.Millisecond, func() (bool, error) {
		opts := []slack.MsgOption{slack.MsgOptionText(strings.TrimSpace(text), false)}
		if len(blocks.BlockSet) > 0 {
			opts = append(opts, slack.MsgOptionBlocks(blocks.BlockSet...))
		}
		if ts := strings.TrimSpace(threadID); ts != "" {
			opts = append(opts, slack.MsgOptionTS(ts))
		}
		_, _, err := api.PostMessageContext(context.Background(), channelID, opts...)
		return b.slackRetryDecision(err)
	})
}

func (b *bridge) slackUploadMedia(channelID, threadID, mediaURL, caption string) error {
	token := strings.TrimSpace(b.cfg.SlackBotToken)
	if token == "" {
		return errors.New("missing SLACK_BOT_TOKEN")
	}
	data, filename, err := b.downloadMedia(mediaURL)
	if err != nil {
		return err
	}
	return withRetry(3, 200*time.Millisecond, func() (bool, error) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		_ = w.WriteField("channel_id", channelID)
		if strings.TrimSpace(threadID) != "" {
			_ = w.WriteField("thread_ts", strings.TrimSpace(threadID))
		}
		if strings.TrimSpace(caption) != "" {
			_ = w.WriteField("initial_comment", strings.TrimSpace(caption))
		}
		_ = w.WriteField("filename", filename)
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			return false, err
		}
		if _, err := part.Write(data); err != nil {
			return false, err
		}
		if err := w.Close(); err != nil {
			return false, err
		}

		u := strings.TrimRight(b.cfg.SlackAPIBase, "/") + "/files.uploadV2"
		req, err := http.NewRequest(http.MethodPost, u, &body)
		if err != nil {
			return false, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", w.FormDataContentType())
		resp, err := b.client.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		var out struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		if out.OK {
			return false, nil
		}
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			time.Sleep(d)
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if out.Error == "" {
			out.Error = "files.uploadV2 failed"
		}
		return retryable, errors.New(out.Error)
	})
}

func (b *bridge) downloadMedia(mediaURL string) ([]byte, string, error) {
	parsed, err := validateMediaDownloadURL(mediaURL)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequest(http.MethodGet, parsed, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("media fetch status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	name := path.Base(req.URL.Path)
	if name == "." || name == "/" || name == "" {
		name = "upload.bin"
	}
	return data, name, nil
}

func validateMediaDownloadURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid media url: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(u.Scheme), "https") {
		return "", errors.New("media url must use https")
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host != "files.slack.com" {
		return "", fmt.Errorf("media url host not allowed: %s", host)
	}
	if strings.TrimSpace(u.User.String()) != "" {
		return "", errors.New("media url user info is not allowed")
	}
	return u.String(), nil
}

func (b *bridge) slackClient() (*slack.Client, error) {
	token := strings.TrimSpace(b.cfg.SlackBotToken)
	if token == "" {
		return nil, errors.New("missing SLACK_BOT_TOKEN")
	}
	base := strings.TrimRight(strings.TrimSpace(b.cfg.SlackAPIBase), "/") + "/"
	return slack.New(token, slack.OptionHTTPClient(b.client), slack.OptionAPIURL(base)), nil
}

func (b *bridge) slackClientWithAppToken(appToken string) (*slack.Client, error) {
	token := strings.TrimSpace(b.cfg.SlackBotToken)
	if token == "" {
		return nil, errors.New("missing SLACK_BOT_TOKEN")
	}
	appToken = strings.TrimSpace(appToken)
	if appToken == "" {
		return nil, errors.New("missing SLACK_APP_TOKEN")
	}
	base := strings.TrimRight(strings.TrimSpace(b.cfg.SlackAPIBase), "/") + "/"
	return slack.New(token, slack.OptionHTTPClient(b.client), slack.OptionAPIURL(base), slack.OptionAppLevelToken(appToken)), nil
}

func (b *bridge) slackRetryDecision(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) && rle != nil {
		if rle.RetryAfter > 0 {
			time.Sleep(rle.RetryAfter)
		}
		return true, err
	}
	return false, err
}

func (b *bridge) resolveReplyThread(channelID, requestedThreadID string) string {
	threadID := strings.TrimSpace(requestedThreadID)
	if threadID == "" {
		return ""
	}
	mode := normalizeReplyMode(b.cfg.SlackReplyMode)
	if mode == "off" {
		return ""
	}
	if mode != "first" {
		return threadID
	}
	key := strings.TrimSpace(channelID)
	b.replyMu.Lock()
	defer b.replyMu.Unlock()
	if b.replySeen[key] {
		return ""
	}
	b.replySeen[key] = true
	return threadID
}

func normalizeReplyMode(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "off":
		return "off"
	case "first":
		return "first"
	default:
		return "all"
	}
}

func (b *bridge) seenInboundEvent(key string, now time.Time) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	b.inboundMu.Lock()
	b.pruneInboundSeenLocked(now)
	if _, ok := b.inboundSeen[key]; ok {
		b.inboundMu.Unlock()
		return true
	}
	b.inboundSeen[key] = now.Add(b.inboundTTL)
	b.inboundMu.Unlock()
	if err := b.saveState(); err != nil {
		log.Printf("channelbridge state save warning: %v", err)
	}
	return false
}

func (b *bridge) pruneInboundSeenLocked(now time.Time) {
	for k, exp := range b.inboundSeen {
		if now.After(exp) {
			delete(b.inboundSeen, k)
		}
	}
}

// postInbound relays one parsed Slack event to the gateway's trusted
// bridge-ingestion route.
func (b *bridge) postInbound(payload map[string]string) error {
	return withRetry(3, 200*time.Millisecond, func() (bool, error) {
		data, _ := json.Marshal(payload)
		u := strings.TrimRight(b.cfg.GatewayBase, "/") + "/webhook/bridge/slack"
		req, err := http.NewRequest(http.MethodPost, u, bytes.NewReader(data))
		if err != nil {
			return false, err
		}
		req.Header.Set("Content-Type", "application/json")
		if b.cfg.GatewayToken != "" {
			req.Header.Set("Authorization", "Bearer "+b.cfg.GatewayToken)
		}
		resp, err := b.client.Do(req)
		if err != nil {
			return true, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 300 {
			return false, nil
		}
		body, _ := io.ReadAll(resp.Body)
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			time.Sleep(d)
		}
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retryable, fmt.Errorf("kafgate inbound rejected: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	})
}

func withRetry(attempts int, baseDelay time.Duration, fn func() (retryable bool, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || i == attempts-1 {
			break
		}
		time.Sleep(baseDelay * time.Duration(1<<i))
	}
	return lastErr
}

func (b *bridge) loadState() error {
	path := strings.TrimSpace(b.cfg.StatePath)
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var st bridgeState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	b.inboundMu.Lock()
	for k, exp := range st.InboundSeen {
		if time.Now().Before(exp) {
			b.inboundSeen[k] = exp
		}
	}
	b.inboundMu.Unlock()
	return nil
}

func (b *bridge) saveState() error {
	path := strings.TrimSpace(b.cfg.StatePath)
	if path == "" {
		return nil
	}
	if dir := parentDir(path); dir != "" {
		_ = os.MkdirAll(dir, 0o700)
	}
	b.inboundMu.Lock()
	st := bridgeState{InboundSeen: copyTimeMap(b.inboundSeen)}
	b.inboundMu.Unlock()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func parentDir(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx]
}

func copyTimeMap(m map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(v); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
