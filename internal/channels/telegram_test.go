package channels

import (
	"testing"

	"github.com/mymmrac/telego"

	"github.com/kafgate/kafgate/internal/message"
)

func TestTelegramParseUpdateIgnoresNonMessageUpdate(t *testing.T) {
	tg := &Telegram{BaseAdapter: BaseAdapter{ID: "tg1"}}
	in, err := tg.ParseUpdate(&telego.Update{UpdateID: 1})
	if err != nil || in != nil {
		t.Fatalf("expected nil, nil for non-message update, got %+v, %v", in, err)
	}
}

func TestTelegramParseUpdateIgnoresBotSender(t *testing.T) {
	tg := &Telegram{BaseAdapter: BaseAdapter{ID: "tg1"}}
	upd := &telego.Update{
		UpdateID: 2,
		Message: &telego.Message{
			MessageID: 10,
			From:      &telego.User{ID: 99, IsBot: true},
			Chat:      telego.Chat{ID: 555},
			Text:      "ignored",
		},
	}
	in, err := tg.ParseUpdate(upd)
	if err != nil || in != nil {
		t.Fatalf("expected nil, nil for bot sender, got %+v, %v", in, err)
	}
}

func TestTelegramParseUpdateBuildsCompositeMessageID(t *testing.T) {
	tg := &Telegram{BaseAdapter: BaseAdapter{ID: "tg1"}}
	upd := &telego.Update{
		UpdateID: 42,
		Message: &telego.Message{
			MessageID: 7,
			From:      &telego.User{ID: 99},
			Chat:      telego.Chat{ID: 555},
			Text:      "hello",
		},
	}
	in, err := tg.ParseUpdate(upd)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if in.MessageID != "tg_42_7" {
		t.Fatalf("expected composite message id tg_42_7, got %s", in.MessageID)
	}
	if in.UserKey != "99" || in.ConversationKey != "555" {
		t.Fatalf("unexpected keys: user=%s conv=%s", in.UserKey, in.ConversationKey)
	}
}

func TestTelegramParseUpdateCaptionOverridesText(t *testing.T) {
	tg := &Telegram{BaseAdapter: BaseAdapter{ID: "tg1"}}
	upd := &telego.Update{
		UpdateID: 1,
		Message: &telego.Message{
			MessageID: 1,
			From:      &telego.User{ID: 1},
			Chat:      telego.Chat{ID: 1},
			Text:      "",
			Caption:   "a caption",
			Document:  &telego.Document{FileID: "doc1", FileName: "report.pdf"},
		},
	}
	in, err := tg.ParseUpdate(upd)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if in.Text != "a caption" {
		t.Fatalf("expected caption to override text, got %q", in.Text)
	}
	if in.Type != message.TypeFile || len(in.Attachments) != 1 {
		t.Fatalf("expected a single file attachment, got %+v", in)
	}
}

func TestTelegramParseUpdatePicksLargestPhoto(t *testing.T) {
	tg := &Telegram{BaseAdapter: BaseAdapter{ID: "tg1"}}
	upd := &telego.Update{
		UpdateID: 1,
		Message: &telego.Message{
			MessageID: 1,
			From:      &telego.User{ID: 1},
			Chat:      telego.Chat{ID: 1},
			Photo: []telego.PhotoSize{
				{FileID: "small", FileSize: 100},
				{FileID: "large", FileSize: 900},
				{FileID: "medium", FileSize: 400},
			},
		},
	}
	in, err := tg.ParseUpdate(upd)
	if err != nil {
		t.Fatalf("ParseUpdate: %v", err)
	}
	if len(in.Attachments) != 1 || in.Attachments[0].URL != "large" {
		t.Fatalf("expected largest photo variant selected, got %+v", in.Attachments)
	}
}

func TestTelegramVerifySecretTokenConstantTime(t *testing.T) {
	tg := &Telegram{SecretToken: "expected-secret"}
	if !tg.VerifySecretToken("expected-secret") {
		t.Fatal("expected matching token to verify")
	}
	if tg.VerifySecretToken("wrong") {
		t.Fatal("expected mismatched token to fail")
	}
}

func TestParseCompositeMessageIDRoundTrip(t *testing.T) {
	u, m, ok := parseCompositeMessageID("tg_42_7")
	if !ok || u != 42 || m != 7 {
		t.Fatalf("expected (42, 7, true), got (%d, %d, %v)", u, m, ok)
	}
	if _, _, ok := parseCompositeMessageID("not-composite"); ok {
		t.Fatal("expected malformed id to fail parsing")
	}
}
