package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
)

// GmailConfig carries the OAuth2 token source Gmail's REST API is accessed
// through.
type GmailConfig struct {
	TokenSource oauth2.TokenSource
	UserEmail   string
}

// GmailProvider implements Provider over the Gmail REST API, for accounts
// authenticated via OAuth2 rather than username/password IMAP.
type GmailProvider struct {
	Config GmailConfig
	HTTP   *http.Client
}

// NewGmailProvider builds a Provider backed by the Gmail API.
func NewGmailProvider(cfg GmailConfig) *GmailProvider {
	return &GmailProvider{
		Config: cfg,
		HTTP:   oauth2.NewClient(context.Background(), cfg.TokenSource),
	}
}

const gmailAPIBase = "https://gmail.googleapis.com/gmail/v1/users/me"

// ValidateCredentials calls the profile endpoint, surfacing auth failures.
func (g *GmailProvider) ValidateCredentials(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gmailAPIBase+"/profile", nil)
	if err != nil {
		return err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("email: gmail validate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("email: gmail validate: status %d", resp.StatusCode)
	}
	return nil
}

type gmailListResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type gmailMessage struct {
	Raw string `json:"raw"`
}

// FetchMessages lists message ids newer than since and fetches each one's
// raw RFC-5322 body, reusing the same parser as the IMAP provider.
func (g *GmailProvider) FetchMessages(ctx context.Context, folder string, since time.Time, limit int) ([]Envelope, error) {
	query := fmt.Sprintf("in:%s after:%d", folder, since.Unix())
	listURL := gmailAPIBase + "/messages?q=" + url.QueryEscape(query)
	if limit > 0 {
		listURL += fmt.Sprintf("&maxResults=%d", limit)
	}

	var list gmailListResponse
	if err := g.getJSON(ctx, listURL, &list); err != nil {
		return nil, fmt.Errorf("email: gmail list: %w", err)
	}

	var envelopes []Envelope
	for _, m := range list.Messages {
		var msg gmailMessage
		msgURL := gmailAPIBase + "/messages/" + m.ID + "?format=raw"
		if err := g.getJSON(ctx, msgURL, &msg); err != nil {
			continue
		}
		raw, err := base64.URLEncoding.DecodeString(msg.Raw)
		if err != nil {
			continue
		}
		env, err := parseRFC5322(string(raw))
		if err != nil {
			continue
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

func (g *GmailProvider) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// SendMessage composes an RFC-5322 message and sends it through Gmail's
// messages.send endpoint, base64url-encoded per the API's "raw" field.
func (g *GmailProvider) SendMessage(ctx context.Context, params SendParams) error {
	raw := buildRFC5322(g.Config.UserEmail, params)
	body, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString([]byte(raw)),
	})
	if err != nil {
		return fmt.Errorf("email: gmail marshal send: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gmailAPIBase+"/messages/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("email: gmail send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("email: gmail send: status %d", resp.StatusCode)
	}
	return nil
}

// MarkAsRead removes the UNREAD label via messages.modify.
func (g *GmailProvider) MarkAsRead(ctx context.Context, folder, messageID string) error {
	body, err := json.Marshal(map[string][]string{"removeLabelIds": {"UNREAD"}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gmailAPIBase+"/messages/"+messageID+"/modify", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("email: gmail mark as read: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("email: gmail mark as read: status %d", resp.StatusCode)
	}
	return nil
}
