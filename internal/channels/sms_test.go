package channels

import (
	"strings"
	"testing"

	"github.com/kafgate/kafgate/internal/message"
)

func TestSMSParseEventSetsKeysFromFrom(t *testing.T) {
	s := NewSMS("sms1", "AC123", "tok", "+15005550006", "ptok")
	in, err := s.ParseEvent(map[string]string{
		"MessageSid": "SM1",
		"From":       "+15551234567",
		"Body":       "hi",
	})
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if in.UserKey != "+15551234567" || in.ConversationKey != "+15551234567" {
		t.Fatalf("expected From as both keys, got %+v", in)
	}
}

func TestSMSSendRejectsNonE164(t *testing.T) {
	s := NewSMS("sms1", "AC123", "tok", "+15005550006", "ptok")
	out := message.NewOutbound("sms1", "5551234567", "5551234567", message.TypeText)
	out.Text = "hi"
	if err := s.Send(nil, out); err == nil {
		t.Fatal("expected error for non-E.164 destination")
	}
}

func TestSMSSendRejectsOverLengthBody(t *testing.T) {
	s := NewSMS("sms1", "AC123", "tok", "+15005550006", "ptok")
	out := message.NewOutbound("sms1", "+15551234567", "+15551234567", message.TypeText)
	out.Text = strings.Repeat("a", smsMaxLength+1)
	if err := s.Send(nil, out); err == nil {
		t.Fatal("expected error for over-length body")
	}
}

func TestSegmentsComputesExpectedCounts(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{strings.Repeat("a", 160), 1},
		{strings.Repeat("a", 161), 2},
		{strings.Repeat("a", 306), 2},
		{strings.Repeat("a", 307), 3},
	}
	for _, c := range cases {
		if got := Segments(c.text); got != c.want {
			t.Errorf("Segments(len=%d) = %d, want %d", len(c.text), got, c.want)
		}
	}
}

func TestHashPhoneNumberIsDeterministicAndObscures(t *testing.T) {
	h1 := HashPhoneNumber("+15551234567")
	h2 := HashPhoneNumber("+15551234567")
	if h1 != h2 {
		t.Fatal("expected deterministic hash")
	}
	if strings.Contains(h1, "5551234567") {
		t.Fatal("hash must not contain the raw number")
	}
}
