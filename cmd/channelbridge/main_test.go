package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestBridge(gatewayURL string) *bridge {
	return &bridge{
		cfg: config{
			GatewayBase: gatewayURL,
		},
		client:      &http.Client{Timeout: 2 * time.Second},
		inboundSeen: map[string]time.Time{},
		inboundTTL:  10 * time.Minute,
		replySeen:   map[string]bool{},
		metrics:     bridgeMetrics{StartedAt: time.Now().UTC()},
	}
}

func TestSlackEventsDedupesByEventID(t *testing.T) {
	var forwards int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/webhook/bridge/slack" {
			atomic.AddInt32(&forwards, 1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	b := newTestBridge(gateway.URL)

	payload := map[string]any{
		"type":     "event_callback",
		"event_id": "Ev123",
		"event": map[string]any{
			"type":    "message",
			"channel": "C123",
			"user":    "U123",
			"text":    "hello",
			"ts":      "1700000.001",
		},
	}
	body, _ := json.Marshal(payload)

	req1 := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	w1 := httptest.NewRecorder()
	b.handleSlackEvents(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request status=%d", w1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	w2 := httptest.NewRecorder()
	b.handleSlackEvents(w2, req2)
	if w2.Code != http.StatusOK {
		t.Fatalf("second request status=%d", w2.Code)
	}

	if got := atomic.LoadInt32(&forwards); got != 1 {
		t.Fatalf("expected 1 forward, got %d", got)
	}
}

func TestSlackEventsURLVerificationEchoesChallenge(t *testing.T) {
	b := newTestBridge("")
	payload := map[string]any{"type": "url_verification", "challenge": "abc123"}
	body, _ := json.Marshal(payload)

	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	b.handleSlackEvents(w, req)

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["challenge"] != "abc123" {
		t.Fatalf("expected challenge echoed, got %q", resp["challenge"])
	}
}

func TestSlackEventsAppMentionForwards(t *testing.T) {
	var gotBody map[string]string
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	b := newTestBridge(gateway.URL)
	payload := map[string]any{
		"type":     "event_callback",
		"event_id": "Ev456",
		"event": map[string]any{
			"type":    "app_mention",
			"channel": "C1",
			"user":    "U1",
			"text":    "<@BOT> status",
			"ts":      "1700000.002",
		},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	b.handleSlackEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if gotBody["channel_id"] != "slack" || gotBody["user_key"] != "U1" || gotBody["text"] == "" {
		t.Fatalf("unexpected forwarded body: %+v", gotBody)
	}
}

func TestSlackEventsBotMessagesAreIgnored(t *testing.T) {
	var forwarded bool
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwarded = true
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	b := newTestBridge(gateway.URL)
	payload := map[string]any{
		"type":     "event_callback",
		"event_id": "Ev789",
		"event": map[string]any{
			"type":    "message",
			"channel": "C1",
			"bot_id":  "B1",
			"text":    "automated",
			"ts":      "1700000.003",
		},
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	w := httptest.NewRecorder()
	b.handleSlackEvents(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	if forwarded {
		t.Fatal("expected bot message not to be forwarded")
	}
}

func TestForwardSlackInboundDedupesByMessageID(t *testing.T) {
	var forwards int32
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&forwards, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	b := newTestBridge(gateway.URL)
	if err := b.forwardSlackInbound("U1", "C1", "", "1.1", "hi"); err != nil {
		t.Fatalf("forwardSlackInbound: %v", err)
	}
	if err := b.forwardSlackInbound("U1", "C1", "", "1.1", "hi"); err != nil {
		t.Fatalf("forwardSlackInbound (dup): %v", err)
	}
	if got := atomic.LoadInt32(&forwards); got != 1 {
		t.Fatalf("expected 1 forward, got %d", got)
	}
}

func TestResolveReplyThreadModeOff(t *testing.T) {
	b := newTestBridge("")
	b.cfg.SlackReplyMode = "off"
	if got := b.resolveReplyThread("C1", "1.1"); got != "" {
		t.Fatalf("expected suppressed thread, got %q", got)
	}
}

func TestResolveReplyThreadModeFirstUsesThreadOnce(t *testing.T) {
	b := newTestBridge("")
	b.cfg.SlackReplyMode = "first"
	first := b.resolveReplyThread("C1", "1.1")
	if first != "1.1" {
		t.Fatalf("expected first call to use thread, got %q", first)
	}
	second := b.resolveReplyThread("C1", "1.1")
	if second != "" {
		t.Fatalf("expected subsequent call to suppress thread, got %q", second)
	}
}

func TestResolveReplyThreadModeAllAlwaysThreads(t *testing.T) {
	b := newTestBridge("")
	b.cfg.SlackReplyMode = "all"
	for i := 0; i < 3; i++ {
		if got := b.resolveReplyThread("C1", "1.1"); got != "1.1" {
			t.Fatalf("expected thread on call %d, got %q", i, got)
		}
	}
}

func TestValidateMediaDownloadURLRejectsDisallowedHost(t *testing.T) {
	if _, err := validateMediaDownloadURL("https://evil.example.com/file.png"); err == nil {
		t.Fatal("expected error for non-allowlisted host")
	}
}

func TestValidateMediaDownloadURLRejectsNonHTTPS(t *testing.T) {
	if _, err := validateMediaDownloadURL("http://files.slack.com/file.png"); err == nil {
		t.Fatal("expected error for non-https scheme")
	}
}

func TestValidateMediaDownloadURLAcceptsSlackFilesHost(t *testing.T) {
	u, err := validateMediaDownloadURL("https://files.slack.com/files-pri/T1-F1/file.png")
	if err != nil {
		t.Fatalf("expected valid url, got error: %v", err)
	}
	if u == "" {
		t.Fatal("expected non-empty normalized url")
	}
}

func TestHandleStatusReportsMetrics(t *testing.T) {
	b := newTestBridge("")
	b.metrics.InboundForwarded = 3

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	b.handleStatus(w, req)

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	metrics, ok := resp["metrics"].(map[string]any)
	if !ok {
		t.Fatalf("expected metrics object, got %v", resp)
	}
	if metrics["inbound_forwarded"] != float64(3) {
		t.Fatalf("expected inbound_forwarded=3, got %v", metrics["inbound_forwarded"])
	}
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := withRetry(3, time.Millisecond, func() (bool, error) {
		attempts++
		if attempts < 2 {
			return true, errBoom
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestWithRetryGivesUpOnNonRetryable(t *testing.T) {
	attempts := 0
	err := withRetry(5, time.Millisecond, func() (bool, error) {
		attempts++
		return false, errBoom
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt for non-retryable error, got %d", attempts)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
