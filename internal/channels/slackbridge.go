package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kafgate/kafgate/internal/message"
)

// SlackBridge adapts a Slack session ingested by the standalone
// channelbridge process (Socket Mode, slash commands, interactions)
// rather than this gateway's own HTTP webhook. Inbound delivery happens
// out of band, via the bridge's trusted POST to the gateway; Send is the
// only method this adapter needs, posting the reply back to the bridge's
// outbound endpoint for it to relay through Slack's Web API.
type SlackBridge struct {
	BaseAdapter
	BridgeURL   string
	BridgeToken string
	HTTP        *http.Client
}

// NewSlackBridge builds a SlackBridge adapter registered under channelID,
// delivering outbound replies to bridgeURL + "/slack/outbound".
func NewSlackBridge(channelID, bridgeURL, bridgeToken string) *SlackBridge {
	return &SlackBridge{
		BaseAdapter: BaseAdapter{ID: channelID},
		BridgeURL:   bridgeURL,
		BridgeToken: bridgeToken,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the outbound message to the bridge's relay endpoint.
func (s *SlackBridge) Send(ctx context.Context, msg *message.Outbound) error {
	body, err := json.Marshal(map[string]string{
		"channel": msg.ConversationKey,
		"thread":  msg.ReplyToMessageID,
		"text":    msg.Text,
	})
	if err != nil {
		return fmt.Errorf("slackbridge: marshal outbound: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BridgeURL+"/slack/outbound", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slackbridge: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.BridgeToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.BridgeToken)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("slackbridge: relay outbound: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("slackbridge: relay outbound: status %d", resp.StatusCode)
	}
	return nil
}
