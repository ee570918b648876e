package channels

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kafgate/kafgate/internal/message"
)

func TestSlackBridgeSendPostsToOutboundEndpoint(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackBridge("slack", srv.URL, "bridge-token")
	out := message.NewOutbound("slack", "U1", "C1", message.TypeText)
	out.Text = "hello"
	out.ReplyToMessageID = "1.1"

	if err := s.Send(context.Background(), out); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/slack/outbound" {
		t.Fatalf("expected /slack/outbound, got %q", gotPath)
	}
	if gotAuth != "Bearer bridge-token" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if gotBody["channel"] != "C1" || gotBody["text"] != "hello" || gotBody["thread"] != "1.1" {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
}

func TestSlackBridgeSendReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSlackBridge("slack", srv.URL, "")
	out := message.NewOutbound("slack", "U1", "C1", message.TypeText)
	out.Text = "hello"

	if err := s.Send(context.Background(), out); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}
