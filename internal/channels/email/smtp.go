package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

// SendMessage composes and delivers a reply (or fresh message) over SMTP
// with implicit TLS (STARTTLS is not used), threading it via In-Reply-To/References when
// params carries them.
func (p *IMAPProvider) SendMessage(ctx context.Context, params SendParams) error {
	if len(params.To) == 0 {
		return fmt.Errorf("email: send requires at least one recipient")
	}

	addr := net.JoinHostPort(p.Config.SMTPHost, strconv.Itoa(p.Config.SMTPPort))
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: p.Config.SMTPHost})
	if err != nil {
		return fmt.Errorf("email: smtp dial: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, p.Config.SMTPHost)
	if err != nil {
		return fmt.Errorf("email: smtp client: %w", err)
	}
	defer client.Quit()

	auth := smtp.PlainAuth("", p.Config.Username, p.Config.Password, p.Config.SMTPHost)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("email: smtp auth: %w", err)
	}
	if err := client.Mail(p.Config.Username); err != nil {
		return fmt.Errorf("email: smtp mail from: %w", err)
	}
	for _, to := range append(append([]string{}, params.To...), params.CC...) {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("email: smtp rcpt %s: %w", to, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("email: smtp data: %w", err)
	}
	if _, err := w.Write([]byte(buildRFC5322(p.Config.Username, params))); err != nil {
		return fmt.Errorf("email: smtp write: %w", err)
	}
	return w.Close()
}

func buildRFC5322(from string, params SendParams) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(params.To, ", "))
	if len(params.CC) > 0 {
		fmt.Fprintf(&b, "Cc: %s\r\n", strings.Join(params.CC, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", params.Subject)
	if params.InReplyTo != "" {
		fmt.Fprintf(&b, "In-Reply-To: <%s>\r\n", params.InReplyTo)
	}
	if len(params.References) > 0 {
		wrapped := make([]string, len(params.References))
		for i, r := range params.References {
			wrapped[i] = "<" + r + ">"
		}
		fmt.Fprintf(&b, "References: %s\r\n", strings.Join(wrapped, " "))
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(params.Text)
	b.WriteString("\r\n")
	return b.String()
}
