package email

import "testing"

func TestThreadRootPrefersReferences(t *testing.T) {
	env := Envelope{
		MessageID:  "<msg3@mail.example.com>",
		InReplyTo:  "<msg2@mail.example.com>",
		References: []string{"<msg1@mail.example.com>", "<msg2@mail.example.com>"},
	}
	if got := env.ThreadRoot(); got != "msg1@mail.example.com" {
		t.Fatalf("expected first reference as thread root, got %q", got)
	}
}

func TestThreadRootFallsBackToInReplyTo(t *testing.T) {
	env := Envelope{
		MessageID: "<msg3@mail.example.com>",
		InReplyTo: "<msg2@mail.example.com>",
	}
	if got := env.ThreadRoot(); got != "msg2@mail.example.com" {
		t.Fatalf("expected in-reply-to as thread root, got %q", got)
	}
}

func TestThreadRootFallsBackToMessageID(t *testing.T) {
	env := Envelope{MessageID: "<msg3@mail.example.com>"}
	if got := env.ThreadRoot(); got != "msg3@mail.example.com" {
		t.Fatalf("expected own message id as thread root, got %q", got)
	}
}

func TestUserKeyIsLowercasedFromAddress(t *testing.T) {
	env := Envelope{From: Address{Address: "Someone@Example.COM"}}
	if got := env.UserKey(); got != "someone@example.com" {
		t.Fatalf("expected lowercased address, got %q", got)
	}
}

func TestOutgoingMessageIDPrefixesStrippedID(t *testing.T) {
	env := Envelope{MessageID: "<abc123@mail.example.com>"}
	if got := env.OutgoingMessageID(); got != "email_abc123@mail.example.com" {
		t.Fatalf("unexpected outgoing message id: %q", got)
	}
}

func TestReplySendParamsPrefixesSubjectAndAccumulatesReferences(t *testing.T) {
	params := ReplySendParams(
		[]string{"a@example.com"},
		"question about invoice",
		"here's the answer",
		[]string{"root@example.com"},
		"email_reply1@example.com",
	)
	if params.Subject != "Re: question about invoice" {
		t.Fatalf("expected Re: prefix, got %q", params.Subject)
	}
	if params.InReplyTo != "reply1@example.com" {
		t.Fatalf("expected stripped in_reply_to, got %q", params.InReplyTo)
	}
	if len(params.References) != 2 || params.References[1] != "reply1@example.com" {
		t.Fatalf("expected references to accumulate, got %+v", params.References)
	}
}

func TestReplySendParamsDoesNotDoublePrefixSubject(t *testing.T) {
	params := ReplySendParams([]string{"a@example.com"}, "Re: already prefixed", "body", nil, "email_x@example.com")
	if params.Subject != "Re: already prefixed" {
		t.Fatalf("expected no double prefix, got %q", params.Subject)
	}
}
