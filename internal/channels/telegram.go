package channels

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/kafgate/kafgate/internal/message"
)

// Telegram adapts Telegram's webhook surface. Updates are decoded into
// telego's typed structs rather than walked as raw maps.
type Telegram struct {
	BaseAdapter
	Bot         *telego.Bot
	SecretToken string
}

// NewTelegram builds a Telegram adapter registered under channelID. botToken
// constructs the underlying telego.Bot used for outbound sendMessage calls.
func NewTelegram(channelID, botToken, secretToken string) (*Telegram, error) {
	bot, err := telego.NewBot(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: new bot: %w", err)
	}
	return &Telegram{
		BaseAdapter: BaseAdapter{ID: channelID},
		Bot:         bot,
		SecretToken: secretToken,
	}, nil
}

// VerifySecretToken compares the X-Telegram-Bot-Api-Secret-Token header
// constant-time against the configured secret.
func (t *Telegram) VerifySecretToken(header string) bool {
	return subtle.ConstantTimeCompare([]byte(header), []byte(t.SecretToken)) == 1
}

// ParseUpdate converts a telego.Update into an Inbound message. Non-message
// updates and bot-authored messages are ignored (returns nil, nil).
func (t *Telegram) ParseUpdate(upd *telego.Update) (*message.Inbound, error) {
	if upd.Message == nil {
		return nil, nil
	}
	msg := upd.Message
	if msg.From != nil && msg.From.IsBot {
		return nil, nil
	}

	userKey := ""
	if msg.From != nil {
		userKey = strconv.FormatInt(msg.From.ID, 10)
	}
	conversationKey := strconv.FormatInt(msg.Chat.ID, 10)
	messageID := fmt.Sprintf("tg_%d_%d", upd.UpdateID, msg.MessageID)
	ts := time.Unix(int64(msg.Date), 0).UTC()

	in := message.NewInbound(t.ID, userKey, conversationKey, messageID, message.TypeText, ts)
	in.Text = msg.Text
	if msg.Caption != "" {
		in.Text = msg.Caption
	}

	switch {
	case len(msg.Photo) > 0:
		largest := msg.Photo[0]
		for _, p := range msg.Photo {
			if p.FileSize > largest.FileSize {
				largest = p
			}
		}
		in.Type = message.TypeImage
		in.Attachments = append(in.Attachments, message.Attachment{
			Type: message.AttachmentImage,
			URL:  largest.FileID,
		})
	case msg.Voice != nil:
		in.Type = message.TypeAudio
		in.Attachments = append(in.Attachments, message.Attachment{Type: message.AttachmentAudio, URL: msg.Voice.FileID})
	case msg.Audio != nil:
		in.Type = message.TypeAudio
		in.Attachments = append(in.Attachments, message.Attachment{Type: message.AttachmentAudio, URL: msg.Audio.FileID})
	case msg.Video != nil:
		in.Type = message.TypeVideo
		in.Attachments = append(in.Attachments, message.Attachment{Type: message.AttachmentVideo, URL: msg.Video.FileID})
	case msg.Document != nil:
		in.Type = message.TypeFile
		in.Attachments = append(in.Attachments, message.Attachment{
			Type:     message.AttachmentDocument,
			URL:      msg.Document.FileID,
			Filename: msg.Document.FileName,
		})
	}

	return in, nil
}

// parseCompositeMessageID splits "tg_{update_id}_{message_id}" back into its
// parts, for building reply_to_message_id on outbound sends.
func parseCompositeMessageID(id string) (updateID, messageID int64, ok bool) {
	var u, m int64
	n, err := fmt.Sscanf(id, "tg_%d_%d", &u, &m)
	if err != nil || n != 2 {
		return 0, 0, false
	}
	return u, m, true
}

// Send posts text via Telegram's sendMessage, deriving chat_id from
// ConversationKey and reply_to_message_id from the composite
// ReplyToMessageID if present.
func (t *Telegram) Send(ctx context.Context, msg *message.Outbound) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	chatID, err := strconv.ParseInt(msg.ConversationKey, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", msg.ConversationKey, err)
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   msg.Text,
	}
	if msg.ReplyToMessageID != "" {
		if _, replyMsgID, ok := parseCompositeMessageID(msg.ReplyToMessageID); ok {
			params.ReplyParameters = &telego.ReplyParameters{MessageID: int(replyMsgID)}
		}
	}

	_, err = t.Bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

// WebhookSecretHeaderName is the header Telegram sends the configured
// secret token on, for webhook handlers to read.
const WebhookSecretHeaderName = "X-Telegram-Bot-Api-Secret-Token"

// RequestSecretToken extracts the secret token header from r.
func RequestSecretToken(r *http.Request) string {
	return r.Header.Get(WebhookSecretHeaderName)
}
