package channels

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kafgate/kafgate/internal/channels/twilioapi"
	"github.com/kafgate/kafgate/internal/message"
)

// WhatsAppTwilio adapts Twilio's WhatsApp webhook/send surface to the
// uniform message model. Outbound sends carry the "whatsapp:" prefix on
// both From and To; at most one media URL is sent, extras are dropped
// with a warning.
type WhatsAppTwilio struct {
	BaseAdapter
	Client     *twilioapi.Client
	AuthToken  string
	FromNumber string
}

// NewWhatsAppTwilio builds a WhatsApp/Twilio adapter registered under
// channelID.
func NewWhatsAppTwilio(channelID, accountSID, authToken, fromNumber string) *WhatsAppTwilio {
	return &WhatsAppTwilio{
		BaseAdapter: BaseAdapter{ID: channelID},
		Client:      twilioapi.NewClient(accountSID, authToken),
		AuthToken:   authToken,
		FromNumber:  fromNumber,
	}
}

// VerifySignature checks X-Twilio-Signature per the WhatsApp/Twilio scheme.
func (w *WhatsAppTwilio) VerifySignature(requestURL string, params map[string]string, signature string) bool {
	return twilioapi.VerifySignatureSHA256(w.AuthToken, requestURL, params, signature)
}

// ParseEvent converts a verified Twilio WhatsApp webhook form post into an
// Inbound message. from_peer (the WhatsApp number without the "whatsapp:"
// prefix) is used as both user_key and conversation_key.
func (w *WhatsAppTwilio) ParseEvent(form map[string]string) (*message.Inbound, error) {
	messageSid := form["MessageSid"]
	from := strings.TrimPrefix(form["From"], "whatsapp:")
	if messageSid == "" || from == "" {
		return nil, fmt.Errorf("whatsapp_twilio: missing MessageSid or From")
	}

	numMedia, _ := strconv.Atoi(form["NumMedia"])
	msg := message.NewInbound(w.ID, from, from, messageSid, message.TypeText, time.Time{})
	msg.Text = form["Body"]

	if numMedia > 0 {
		mime := form["MediaContentType0"]
		msg.Type = attachmentMessageType(mime)
		msg.Attachments = append(msg.Attachments, message.Attachment{
			Type:     message.AttachmentTypeFromMIME(mime),
			URL:      form["MediaUrl0"],
			MimeType: mime,
		})
		if numMedia > 1 {
			log.Printf("whatsapp_twilio: dropping %d extra media items beyond the first", numMedia-1)
		}
	}
	return msg, nil
}

func attachmentMessageType(mime string) message.Type {
	switch message.AttachmentTypeFromMIME(mime) {
	case message.AttachmentImage:
		return message.TypeImage
	case message.AttachmentAudio:
		return message.TypeAudio
	case message.AttachmentVideo:
		return message.TypeVideo
	default:
		return message.TypeFile
	}
}

// Send delivers an outbound message via the Twilio REST API.
func (w *WhatsAppTwilio) Send(ctx context.Context, msg *message.Outbound) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("whatsapp_twilio: %w", err)
	}
	var mediaURL string
	if len(msg.Attachments) > 0 {
		mediaURL = msg.Attachments[0].URL
		if len(msg.Attachments) > 1 {
			log.Printf("whatsapp_twilio: dropping %d extra outbound attachments", len(msg.Attachments)-1)
		}
	}
	from := "whatsapp:" + w.FromNumber
	to := "whatsapp:" + msg.ConversationKey
	return w.Client.SendMessage(ctx, from, to, msg.Text, mediaURL)
}

// VerifyTwilioRequest reconstructs the request URL and form parameters from
// r and checks the signature — the common entrypoint webhook handlers call
// before parsing either WhatsApp or SMS payloads.
func VerifyTwilioRequest(r *http.Request, verify func(url string, params map[string]string, sig string) bool) (map[string]string, bool) {
	if err := r.ParseForm(); err != nil {
		return nil, false
	}
	params := map[string]string{}
	for k := range r.PostForm {
		params[k] = r.PostForm.Get(k)
	}
	sig := r.Header.Get("X-Twilio-Signature")
	return params, verify(requestURLFor(r), params, sig)
}

func requestURLFor(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil && r.Header.Get("X-Forwarded-Proto") != "https" {
		scheme = r.Header.Get("X-Forwarded-Proto")
		if scheme == "" {
			scheme = "http"
		}
	}
	return scheme + "://" + r.Host + r.URL.Path
}
