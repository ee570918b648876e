package channels

import (
	"testing"

	"github.com/kafgate/kafgate/internal/message"
)

func TestWhatsAppParseEventStripsPrefixAndSetsKeys(t *testing.T) {
	w := NewWhatsAppTwilio("wa1", "AC123", "tok", "+15005550006")
	form := map[string]string{
		"MessageSid": "SM123",
		"From":       "whatsapp:+15551234567",
		"Body":       "hello there",
	}
	in, err := w.ParseEvent(form)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if in.UserKey != "+15551234567" || in.ConversationKey != "+15551234567" {
		t.Fatalf("expected stripped number as both keys, got user=%q conv=%q", in.UserKey, in.ConversationKey)
	}
	if in.Type != message.TypeText || in.Text != "hello there" {
		t.Fatalf("unexpected text message: %+v", in)
	}
}

func TestWhatsAppParseEventMapsMediaType(t *testing.T) {
	w := NewWhatsAppTwilio("wa1", "AC123", "tok", "+15005550006")
	form := map[string]string{
		"MessageSid":        "SM124",
		"From":               "whatsapp:+15551234567",
		"NumMedia":           "2",
		"MediaUrl0":          "https://example.com/a.jpg",
		"MediaContentType0":  "image/jpeg",
	}
	in, err := w.ParseEvent(form)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if in.Type != message.TypeImage {
		t.Fatalf("expected image type, got %s", in.Type)
	}
	if len(in.Attachments) != 1 {
		t.Fatalf("expected exactly one attachment despite NumMedia=2, got %d", len(in.Attachments))
	}
	if in.Attachments[0].Type != message.AttachmentImage {
		t.Fatalf("expected image attachment type, got %s", in.Attachments[0].Type)
	}
}

func TestWhatsAppParseEventRejectsMissingFields(t *testing.T) {
	w := NewWhatsAppTwilio("wa1", "AC123", "tok", "+15005550006")
	if _, err := w.ParseEvent(map[string]string{"MessageSid": "SM1"}); err == nil {
		t.Fatal("expected error for missing From")
	}
}

func TestWhatsAppSendRejectsEmptyText(t *testing.T) {
	w := NewWhatsAppTwilio("wa1", "AC123", "tok", "+15005550006")
	out := message.NewOutbound("wa1", "+15551234567", "+15551234567", message.TypeText)
	if err := w.Send(nil, out); err == nil {
		t.Fatal("expected validation error for empty text outbound")
	}
}
