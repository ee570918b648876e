package channels

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"github.com/kafgate/kafgate/internal/channels/twilioapi"
	"github.com/kafgate/kafgate/internal/message"
)

const (
	smsMaxLength          = 480
	smsSingleSegmentLimit = 160
	smsSegmentSize        = 153
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// SMS adapts Twilio's bidirectional SMS surface. Inbound delivery carries a
// secret path token in its webhook URL; the caller matches that token to
// the configured adapter before invoking VerifySignature.
type SMS struct {
	BaseAdapter
	Client     *twilioapi.Client
	AuthToken  string
	FromNumber string
	PathToken  string
}

// NewSMS builds an SMS adapter registered under channelID.
func NewSMS(channelID, accountSID, authToken, fromNumber, pathToken string) *SMS {
	return &SMS{
		BaseAdapter: BaseAdapter{ID: channelID},
		Client:      twilioapi.NewClient(accountSID, authToken),
		AuthToken:   authToken,
		FromNumber:  fromNumber,
		PathToken:   pathToken,
	}
}

// VerifySignature checks X-Twilio-Signature per the SMS/Twilio HMAC-SHA1
// scheme.
func (s *SMS) VerifySignature(requestURL string, params map[string]string, signature string) bool {
	return twilioapi.VerifySignatureSHA1(s.AuthToken, requestURL, params, signature)
}

// ParseEvent converts a verified Twilio SMS webhook form post into an
// Inbound message.
func (s *SMS) ParseEvent(form map[string]string) (*message.Inbound, error) {
	sid := form["MessageSid"]
	from := form["From"]
	if sid == "" || from == "" {
		return nil, fmt.Errorf("sms: missing MessageSid or From")
	}
	msg := message.NewInbound(s.ID, from, from, sid, message.TypeText, time.Time{})
	msg.Text = form["Body"]
	return msg, nil
}

// Send validates E.164, enforces the length limit, and delivers via the
// shared Twilio REST client. Phone numbers are never present in the
// returned error — only in the request itself.
func (s *SMS) Send(ctx context.Context, msg *message.Outbound) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	if !e164Pattern.MatchString(msg.ConversationKey) {
		return fmt.Errorf("sms: destination is not a valid E.164 number")
	}
	if len(msg.Text) > smsMaxLength {
		return fmt.Errorf("sms: message exceeds max length of %d characters", smsMaxLength)
	}
	return s.Client.SendMessage(ctx, s.FromNumber, msg.ConversationKey, msg.Text, "")
}

// Segments computes the Twilio segment count for a message body: 1 for
// anything at or under 160 characters, else ceil(len/153).
func Segments(text string) int {
	n := len(text)
	if n <= smsSingleSegmentLimit {
		return 1
	}
	return (n + smsSegmentSize - 1) / smsSegmentSize
}

// HashPhoneNumber returns the hex-encoded SHA-256 digest of a phone number,
// for audit logging that must never retain the raw number.
func HashPhoneNumber(number string) string {
	sum := sha256.Sum256([]byte(number))
	return hex.EncodeToString(sum[:])
}
