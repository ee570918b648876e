// Package message defines the uniform message model every channel adapter
// and middleware in the gateway speaks: InboundMessage, OutboundMessage, and
// their shared attachment/location types.
package message

import (
	"fmt"
	"time"
)

// Type is the tagged union discriminator carried by both inbound and
// outbound messages.
type Type string

const (
	TypeText     Type = "text"
	TypeImage    Type = "image"
	TypeAudio    Type = "audio"
	TypeVideo    Type = "video"
	TypeFile     Type = "file"
	TypeLocation Type = "location"
	TypeSystem   Type = "system"
)

// AttachmentType is the tagged union discriminator for Attachment.Type.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
)

// AttachmentTypeFromMIME maps a MIME type prefix to an AttachmentType,
// defaulting to AttachmentDocument for anything not image/audio/video.
func AttachmentTypeFromMIME(mime string) AttachmentType {
	switch {
	case len(mime) >= 6 && mime[:6] == "image/":
		return AttachmentImage
	case len(mime) >= 6 && mime[:6] == "audio/":
		return AttachmentAudio
	case len(mime) >= 6 && mime[:6] == "video/":
		return AttachmentVideo
	default:
		return AttachmentDocument
	}
}

// Attachment is a single ordered media item carried by a message.
type Attachment struct {
	Type      AttachmentType `json:"type"`
	URL       string         `json:"url"`
	MimeType  string         `json:"mime_type,omitempty"`
	Filename  string         `json:"filename,omitempty"`
	SizeBytes int64          `json:"size_bytes,omitempty"`
}

// Location is a geographic point attached to a message.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

// Inbound is immutable after construction: every adapter builds one via
// NewInbound and callers must treat the returned value as read-only, save
// for Metadata which middlewares are allowed to annotate.
type Inbound struct {
	ChannelID       string
	UserKey         string
	ConversationKey string
	MessageID       string
	Timestamp       time.Time
	Type            Type
	Text            string
	Attachments     []Attachment
	Location        *Location
	Raw             any
	Metadata        map[string]string
}

// NewInbound constructs an Inbound message, defaulting Timestamp to now (UTC)
// when the zero value is passed and always allocating Metadata.
func NewInbound(channelID, userKey, conversationKey, messageID string, typ Type, ts time.Time) *Inbound {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Inbound{
		ChannelID:       channelID,
		UserKey:         userKey,
		ConversationKey: conversationKey,
		MessageID:       messageID,
		Timestamp:       ts.UTC(),
		Type:            typ,
		Metadata:        map[string]string{},
	}
}

// Outbound carries a reply destined for a channel adapter. Validate enforces
// the invariant that the payload matches its declared Type.
type Outbound struct {
	ChannelID         string
	UserKey           string
	ConversationKey   string
	MessageID         string
	ReplyToMessageID  string
	Type              Type
	Text              string
	Attachments       []Attachment
	Location          *Location
	Metadata          map[string]string
}

// NewOutbound constructs an Outbound message; it does not call Validate. userKey is the
// deliverable address for channels (email) whose ConversationKey is a
// thread/session identifier rather than something a provider can send to
// directly; other channels may leave it equal to ConversationKey.
func NewOutbound(channelID, userKey, conversationKey string, typ Type) *Outbound {
	return &Outbound{
		ChannelID:       channelID,
		UserKey:         userKey,
		ConversationKey: conversationKey,
		Type:            typ,
		Metadata:        map[string]string{},
	}
}

// Validate enforces: type==text ⇒ text≠∅; type∈{image,audio,video,file} ⇒
// attachments≠∅; type==location ⇒ location≠nil.
func (o *Outbound) Validate() error {
	switch o.Type {
	case TypeText:
		if o.Text == "" {
			return fmt.Errorf("message: type=text requires non-empty text")
		}
	case TypeImage, TypeAudio, TypeVideo, TypeFile:
		if len(o.Attachments) == 0 {
			return fmt.Errorf("message: type=%s requires at least one attachment", o.Type)
		}
	case TypeLocation:
		if o.Location == nil {
			return fmt.Errorf("message: type=location requires a location")
		}
	}
	return nil
}
