package channels

import (
	"testing"

	"github.com/kafgate/kafgate/internal/message"
)

func TestPingResponseBody(t *testing.T) {
	resp := PingResponse()
	if resp["type"] != discordResponsePong {
		t.Fatalf("expected type=%d, got %v", discordResponsePong, resp["type"])
	}
}

func TestDeferredResponseBody(t *testing.T) {
	resp := DeferredResponse()
	if resp["type"] != discordResponseDeferredChannelMessageWithSrc {
		t.Fatalf("expected type=%d, got %v", discordResponseDeferredChannelMessageWithSrc, resp["type"])
	}
}

func TestParseInteractionIgnoresPing(t *testing.T) {
	d := NewDiscord("discord1", "app1", "deadbeef")
	in, err := d.ParseInteraction(&interaction{Type: discordTypePing})
	if err != nil || in != nil {
		t.Fatalf("expected nil, nil for PING, got %+v, %v", in, err)
	}
}

func TestParseInteractionIgnoresBotUser(t *testing.T) {
	d := NewDiscord("discord1", "app1", "deadbeef")
	in := &interaction{ID: "i1", Type: discordTypeApplicationCommand}
	in.User.ID = "99"
	in.User.Bot = true
	msg, err := d.ParseInteraction(in)
	if err != nil || msg != nil {
		t.Fatalf("expected bot-authored interaction ignored, got %+v, %v", msg, err)
	}
}

func TestParseInteractionBuildsCommandText(t *testing.T) {
	d := NewDiscord("discord1", "app1", "deadbeef")
	in := &interaction{ID: "i1", Type: discordTypeApplicationCommand, Token: "tok1", ChannelID: "c1"}
	in.User.ID = "42"
	in.Data.Name = "status"
	in.Data.Options = []struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	}{{Name: "verbose", Value: true}}

	msg, err := d.ParseInteraction(in)
	if err != nil {
		t.Fatalf("ParseInteraction: %v", err)
	}
	if msg.Text != "/status verbose: true" {
		t.Fatalf("unexpected text: %q", msg.Text)
	}
	if msg.UserKey != "42" || msg.ConversationKey != "c1" {
		t.Fatalf("unexpected keys: user=%s conv=%s", msg.UserKey, msg.ConversationKey)
	}
	if msg.Metadata["interaction_token"] != "tok1" {
		t.Fatalf("expected interaction token stashed in metadata, got %+v", msg.Metadata)
	}
}

func TestParseInteractionDropsDuplicateID(t *testing.T) {
	d := NewDiscord("discord1", "app1", "deadbeef")
	in := &interaction{ID: "dup1", Type: discordTypeApplicationCommand}
	in.User.ID = "1"
	in.Data.Name = "help"

	first, err := d.ParseInteraction(in)
	if err != nil || first == nil {
		t.Fatalf("expected first occurrence accepted, got %+v, %v", first, err)
	}
	second, err := d.ParseInteraction(in)
	if err != nil || second != nil {
		t.Fatalf("expected duplicate id dropped, got %+v, %v", second, err)
	}
}

func TestSendIsUnsupported(t *testing.T) {
	d := NewDiscord("discord1", "app1", "deadbeef")
	out := message.NewOutbound("discord1", "u1", "c1", message.TypeText)
	out.Text = "hi"
	if err := d.Send(nil, out); err == nil {
		t.Fatal("expected Send to be unsupported for v1")
	}
}
