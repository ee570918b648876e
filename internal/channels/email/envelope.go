// Package email defines the provider-agnostic email contract (IMAP, Gmail
// API, and future SMTP/Outlook providers all implement Provider) plus the
// envelope parsing and frozen thread-detection rules shared by every
// implementation.
package email

import (
	"context"
	"strings"
	"time"
)

// Address is a parsed RFC-5322 mailbox: a display name plus an address.
type Address struct {
	Name    string
	Address string
}

// Attachment describes a MIME part's metadata without its bytes — the
// gateway tracks attachments by reference, not by storing content.
type Attachment struct {
	Filename  string
	MimeType  string
	SizeBytes int64
}

// Envelope is a parsed inbound email, independent of transport.
type Envelope struct {
	MessageID  string
	InReplyTo  string
	References []string
	From       Address
	To         []Address
	CC         []Address
	Subject    string
	Date       time.Time
	TextBody   string
	HTMLBody   string
	Attachments []Attachment
}

// stripAngleBrackets trims the "<" and ">" RFC-5322 wraps a message
// identifier, returning the empty string untouched.
func stripAngleBrackets(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}

// ThreadRoot implements the frozen thread-detection rule: the first token of
// References if present, else In-Reply-To, else the envelope's own
// Message-ID, each stripped of angle brackets.
func (e Envelope) ThreadRoot() string {
	if len(e.References) > 0 {
		return stripAngleBrackets(e.References[0])
	}
	if e.InReplyTo != "" {
		return stripAngleBrackets(e.InReplyTo)
	}
	return stripAngleBrackets(e.MessageID)
}

// UserKey is the lowercased From address, the gateway's user identity for
// email channels.
func (e Envelope) UserKey() string {
	return strings.ToLower(e.From.Address)
}

// OutgoingMessageID returns the "email_"-prefixed composite message id this
// envelope is addressed by within the gateway.
func (e Envelope) OutgoingMessageID() string {
	return "email_" + stripAngleBrackets(e.MessageID)
}

// SendParams carries everything Provider.SendMessage needs to compose and
// thread a reply (or a fresh message, when InReplyTo is empty).
type SendParams struct {
	To          []string
	CC          []string
	Subject     string
	Text        string
	HTML        string
	InReplyTo   string
	References  []string
	Attachments []Attachment
}

// Provider is the contract every email backend (IMAP, Gmail API, Outlook)
// implements. All operations are context-bound since they cross the
// network.
type Provider interface {
	ValidateCredentials(ctx context.Context) error
	FetchMessages(ctx context.Context, folder string, since time.Time, limit int) ([]Envelope, error)
	SendMessage(ctx context.Context, params SendParams) error
	MarkAsRead(ctx context.Context, folder, messageID string) error
}

// ReplySendParams derives SendParams for replying to an envelope whose
// composite gateway message id is replyToMessageID, per the frozen reply
// rules: in_reply_to is the stripped "email_"-prefixed id, subject gains a
// "Re: " prefix unless already present, and references accumulates the
// prior chain plus the id being replied to.
func ReplySendParams(to []string, subject, text string, priorReferences []string, replyToMessageID string) SendParams {
	inReplyTo := strings.TrimPrefix(replyToMessageID, "email_")
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	refs := append(append([]string{}, priorReferences...), inReplyTo)
	return SendParams{
		To:         to,
		Subject:    subject,
		Text:       text,
		InReplyTo:  inReplyTo,
		References: refs,
	}
}
