package channels

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kafgate/kafgate/internal/bus"
	"github.com/kafgate/kafgate/internal/channels/email"
	"github.com/kafgate/kafgate/internal/message"
	"github.com/kafgate/kafgate/internal/store"
)

type fakeProvider struct {
	envelopes []email.Envelope
	sent      []email.SendParams
}

func (f *fakeProvider) ValidateCredentials(ctx context.Context) error { return nil }

func (f *fakeProvider) FetchMessages(ctx context.Context, folder string, since time.Time, limit int) ([]email.Envelope, error) {
	return f.envelopes, nil
}

func (f *fakeProvider) SendMessage(ctx context.Context, params email.SendParams) error {
	f.sent = append(f.sent, params)
	return nil
}

func (f *fakeProvider) MarkAsRead(ctx context.Context, folder, messageID string) error { return nil }

func openEmailTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kafgate.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewEmailClampsInterval(t *testing.T) {
	st := openEmailTestStore(t)
	e := NewEmail("email1", &fakeProvider{}, "INBOX", 5, st)
	if e.IntervalS != emailMinIntervalS {
		t.Fatalf("expected interval clamped to %d, got %d", emailMinIntervalS, e.IntervalS)
	}
	e2 := NewEmail("email1", &fakeProvider{}, "INBOX", 999999, st)
	if e2.IntervalS != emailMaxIntervalS {
		t.Fatalf("expected interval clamped to %d, got %d", emailMaxIntervalS, e2.IntervalS)
	}
}

func TestPollDeliversNewEnvelopesAndAdvancesCursor(t *testing.T) {
	st := openEmailTestStore(t)
	provider := &fakeProvider{envelopes: []email.Envelope{
		{MessageID: "<m1@example.com>", From: email.Address{Address: "user@example.com"}, Subject: "hi", TextBody: "hello"},
	}}
	e := NewEmail("email1", provider, "INBOX", 60, st)
	e.BaseAdapter.Bus = bus.New()

	e.poll(context.Background())

	cursor, err := st.GetCursor("email1")
	if err != nil {
		t.Fatalf("get cursor: %v", err)
	}
	if cursor.LastMessageID != "email_m1@example.com" {
		t.Fatalf("expected cursor advanced to delivered message, got %q", cursor.LastMessageID)
	}
}

func TestPollRecordsDeliveredEnvelopeAsSeen(t *testing.T) {
	st := openEmailTestStore(t)
	provider := &fakeProvider{envelopes: []email.Envelope{
		{MessageID: "<m1@example.com>", From: email.Address{Address: "user@example.com"}, TextBody: "hello"},
	}}
	e := NewEmail("email1", provider, "INBOX", 60, st)
	e.BaseAdapter.Bus = bus.New()

	e.poll(context.Background())
	first := e.isDuplicate("email_m1@example.com")
	if !first {
		t.Fatal("expected envelope already delivered by poll to be recorded as seen")
	}
}

func TestSendErrorsForUnknownThread(t *testing.T) {
	st := openEmailTestStore(t)
	e := NewEmail("email1", &fakeProvider{}, "INBOX", 60, st)
	out := message.NewOutbound("email1", "user@example.com", "root1@example.com", message.TypeText)
	out.Text = "hi"
	if err := e.Send(context.Background(), out); err == nil {
		t.Fatal("expected error for a conversation with no recorded thread")
	}
}

func TestSendErrorsWithoutUserKey(t *testing.T) {
	st := openEmailTestStore(t)
	e := NewEmail("email1", &fakeProvider{}, "INBOX", 60, st)
	out := message.NewOutbound("email1", "", "root1@example.com", message.TypeText)
	out.Text = "hi"
	if err := e.Send(context.Background(), out); err == nil {
		t.Fatal("expected error when UserKey is empty")
	}
}

func TestSendRepliesIntoThreadAfterPoll(t *testing.T) {
	st := openEmailTestStore(t)
	provider := &fakeProvider{envelopes: []email.Envelope{
		{MessageID: "<m1@example.com>", From: email.Address{Address: "user@example.com"}, Subject: "question", TextBody: "hello"},
	}}
	e := NewEmail("email1", provider, "INBOX", 60, st)
	e.BaseAdapter.Bus = bus.New()
	e.poll(context.Background())

	out := message.NewOutbound("email1", "user@example.com", "m1@example.com", message.TypeText)
	out.Text = "answer"
	if err := e.Send(context.Background(), out); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(provider.sent))
	}
	sent := provider.sent[0]
	if len(sent.To) != 1 || sent.To[0] != "user@example.com" {
		t.Fatalf("expected recipient derived from UserKey, got %+v", sent.To)
	}
	if sent.Subject != "Re: question" {
		t.Fatalf("expected Re:-prefixed subject, got %q", sent.Subject)
	}
	if sent.InReplyTo != "m1@example.com" {
		t.Fatalf("expected threaded in_reply_to, got %q", sent.InReplyTo)
	}
}

func TestSendReplyDerivesThreadingFields(t *testing.T) {
	st := openEmailTestStore(t)
	provider := &fakeProvider{}
	e := NewEmail("email1", provider, "INBOX", 60, st)

	err := e.SendReply(context.Background(), []string{"a@example.com"}, "question", "answer", nil, "email_root1@example.com")
	if err != nil {
		t.Fatalf("SendReply: %v", err)
	}
	if len(provider.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(provider.sent))
	}
	if provider.sent[0].InReplyTo != "root1@example.com" {
		t.Fatalf("expected derived in_reply_to, got %q", provider.sent[0].InReplyTo)
	}
}
