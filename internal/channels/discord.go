package channels

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/kafgate/kafgate/internal/message"
)

const discordIdempotencyCapacity = 10_000

// Discord interaction type/response-type constants, per Discord's
// Interactions API.
const (
	discordTypePing              = 1
	discordTypeApplicationCommand = 2

	discordResponsePong                          = 1
	discordResponseDeferredChannelMessageWithSrc = 5
	discordResponseChannelMessageWithSource       = 4
)

// Discord adapts Discord's interactions webhook. Unlike the other channels,
// v1 only supports the defer-then-async reply pattern: Send always returns
// an error; replies are delivered by editing the deferred interaction
// response from background processing.
type Discord struct {
	BaseAdapter
	PublicKey string
	AppID     string
	HTTP      *http.Client

	mu       sync.Mutex
	seen     map[string]struct{}
	seenFIFO []string
}

// NewDiscord builds a Discord adapter registered under channelID.
func NewDiscord(channelID, appID, publicKey string) *Discord {
	return &Discord{
		BaseAdapter: BaseAdapter{ID: channelID},
		PublicKey:   publicKey,
		AppID:       appID,
		HTTP:        &http.Client{Timeout: 10 * time.Second},
		seen:        map[string]struct{}{},
	}
}

// VerifyRequest checks the Ed25519 signature over timestamp||body using the
// configured application public key. r.Body is restored after the check so
// the caller can still decode the interaction JSON from it.
func (d *Discord) VerifyRequest(r *http.Request) bool {
	key, err := hex.DecodeString(d.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return false
	}
	return discordgo.VerifyInteraction(r, ed25519.PublicKey(key))
}

// interaction is the subset of a Discord interaction payload this adapter
// needs, decoded generically since full schema coverage (component/modal
// interactions) is out of scope for v1.
type interaction struct {
	ID     string `json:"id"`
	Type   int    `json:"type"`
	Token  string `json:"token"`
	Member struct {
		User struct {
			ID string `json:"id"`
			Bot bool  `json:"bot"`
		} `json:"user"`
	} `json:"member"`
	User struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"user"`
	ChannelID string `json:"channel_id"`
	Data      struct {
		Name    string `json:"name"`
		Options []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"options"`
	} `json:"data"`
}

// DecodeInteraction unmarshals a webhook body into the interaction shape
// ParseInteraction and the handler's type-dispatch operate on.
func DecodeInteraction(body []byte) (*interaction, error) {
	var in interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("discord: decode interaction: %w", err)
	}
	return &in, nil
}

// PingResponse is the synchronous body for type=1 (PING) interactions.
func PingResponse() map[string]any {
	return map[string]any{"type": discordResponsePong}
}

// DeferredResponse is the synchronous body for type=2 (APPLICATION_COMMAND)
// interactions, acknowledging within the 3 s budget while processing
// continues in the background.
func DeferredResponse() map[string]any {
	return map[string]any{"type": discordResponseDeferredChannelMessageWithSrc}
}

// IsPing reports whether a decoded interaction is a type=1 PING, the
// connectivity check Discord sends when a webhook URL is first configured.
func IsPing(in *interaction) bool {
	return in.Type == discordTypePing
}

func userID(in *interaction) string {
	if in.Member.User.ID != "" {
		return in.Member.User.ID
	}
	return in.User.ID
}

func isBotUser(in *interaction) bool {
	return in.Member.User.Bot || in.User.Bot
}

// ParseInteraction converts a verified APPLICATION_COMMAND interaction into
// an Inbound message, collapsing command name + options into a single text
// line, or (nil, nil) if it should be ignored (bot author, duplicate id, or
// an interaction type this adapter doesn't process as a message).
func (d *Discord) ParseInteraction(in *interaction) (*message.Inbound, error) {
	if in.Type != discordTypeApplicationCommand {
		return nil, nil
	}
	if isBotUser(in) {
		return nil, nil
	}
	if d.isDuplicate(in.ID) {
		return nil, nil
	}

	var parts []string
	parts = append(parts, "/"+in.Data.Name)
	for _, opt := range in.Data.Options {
		parts = append(parts, fmt.Sprintf("%s: %v", opt.Name, opt.Value))
	}

	msg := message.NewInbound(d.ID, userID(in), in.ChannelID, in.ID, message.TypeText, time.Time{})
	msg.Text = strings.Join(parts, " ")
	msg.Metadata["interaction_token"] = in.Token
	return msg, nil
}

func (d *Discord) isDuplicate(interactionID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[interactionID]; ok {
		return true
	}
	d.seen[interactionID] = struct{}{}
	d.seenFIFO = append(d.seenFIFO, interactionID)
	if len(d.seenFIFO) > discordIdempotencyCapacity {
		oldest := d.seenFIFO[0]
		d.seenFIFO = d.seenFIFO[1:]
		delete(d.seen, oldest)
	}
	return false
}

// EditOriginalResponse edits the deferred interaction response with text,
// using the interaction token (valid 15 minutes from the original
// interaction). This is how v1 delivers replies — there is no independent
// "send a new message" path.
func (d *Discord) EditOriginalResponse(ctx context.Context, interactionToken, text string) error {
	url := fmt.Sprintf("https://discord.com/api/v10/webhooks/%s/%s/messages/@original", d.AppID, interactionToken)
	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("discord: marshal edit body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: build edit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("discord: edit original response: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord: edit original response: status %d", resp.StatusCode)
	}
	return nil
}

// Send is unsupported for v1: Discord replies only flow through
// EditOriginalResponse from the defer-then-async background task.
func (d *Discord) Send(ctx context.Context, msg *message.Outbound) error {
	return fmt.Errorf("discord: direct send is not supported, use the deferred interaction edit")
}
