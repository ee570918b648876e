package email

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/mail"
	"net/textproto"
	"strconv"
	"strings"
	"time"
)

// IMAPConfig carries the connection parameters for a single mailbox.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string

	SMTPHost string
	SMTPPort int
}

// IMAPProvider implements Provider over a minimal hand-rolled IMAP4rev1
// client (RFC 3501) plus SMTP for sending. It opens and closes a fresh
// connection per call rather than holding one open across polls, trading a
// little latency for never needing idle/keepalive handling.
type IMAPProvider struct {
	Config IMAPConfig
}

// NewIMAPProvider builds a Provider backed by direct IMAP/SMTP protocol
// calls, for self-hosted or generic-IMAP mail accounts.
func NewIMAPProvider(cfg IMAPConfig) *IMAPProvider {
	return &IMAPProvider{Config: cfg}
}

type imapConn struct {
	conn net.Conn
	r    *bufio.Reader
	tag  int
}

func dialIMAP(ctx context.Context, cfg IMAPConfig) (*imapConn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	conn, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("email: imap dial: %w", err)
	}
	ic := &imapConn{conn: conn, r: bufio.NewReader(conn)}
	if _, err := ic.readLine(); err != nil { // server greeting
		conn.Close()
		return nil, fmt.Errorf("email: imap greeting: %w", err)
	}
	return ic, nil
}

func (c *imapConn) Close() { c.conn.Close() }

func (c *imapConn) readLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// command sends a tagged IMAP command and collects every line up to (and
// including) the matching tagged status response.
func (c *imapConn) command(format string, args ...any) ([]string, error) {
	c.tag++
	tag := fmt.Sprintf("A%04d", c.tag)
	line := fmt.Sprintf(tag+" "+format+"\r\n", args...)
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return nil, fmt.Errorf("email: imap write: %w", err)
	}

	var lines []string
	for {
		resp, err := c.readLine()
		if err != nil {
			return nil, fmt.Errorf("email: imap read: %w", err)
		}
		lines = append(lines, resp)
		if strings.HasPrefix(resp, tag+" ") {
			if strings.Contains(resp, "OK") {
				return lines, nil
			}
			return lines, fmt.Errorf("email: imap command failed: %s", resp)
		}
	}
}

func (c *imapConn) login(user, pass string) error {
	_, err := c.command("LOGIN %s %s", imapQuote(user), imapQuote(pass))
	return err
}

func (c *imapConn) selectFolder(folder string) error {
	_, err := c.command("SELECT %s", imapQuote(folder))
	return err
}

func (c *imapConn) logout() {
	c.command("LOGOUT")
}

func imapQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// ValidateCredentials opens a connection and logs in, surfacing
// authentication failures without fetching anything.
func (p *IMAPProvider) ValidateCredentials(ctx context.Context) error {
	conn, err := dialIMAP(ctx, p.Config)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer conn.logout()
	return conn.login(p.Config.Username, p.Config.Password)
}

// FetchMessages searches folder for messages since the given time and
// fetches each as a full RFC-5322 message, parsing at most limit of them.
func (p *IMAPProvider) FetchMessages(ctx context.Context, folder string, since time.Time, limit int) ([]Envelope, error) {
	conn, err := dialIMAP(ctx, p.Config)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	defer conn.logout()

	if err := conn.login(p.Config.Username, p.Config.Password); err != nil {
		return nil, err
	}
	if err := conn.selectFolder(folder); err != nil {
		return nil, err
	}

	searchDate := since.UTC().Format("02-Jan-2006")
	lines, err := conn.command("SEARCH SINCE %s", searchDate)
	if err != nil {
		return nil, fmt.Errorf("email: imap search: %w", err)
	}
	ids := parseSearchIDs(lines)
	if limit > 0 && len(ids) > limit {
		ids = ids[len(ids)-limit:]
	}

	var envelopes []Envelope
	for _, id := range ids {
		raw, err := conn.fetchRFC822(id)
		if err != nil {
			continue // per-message fetch failures are skipped, not fatal
		}
		env, err := parseRFC5322(raw)
		if err != nil {
			continue
		}
		envelopes = append(envelopes, env)
	}
	return envelopes, nil
}

func parseSearchIDs(lines []string) []string {
	for _, l := range lines {
		if strings.HasPrefix(l, "* SEARCH") {
			fields := strings.Fields(strings.TrimPrefix(l, "* SEARCH"))
			return fields
		}
	}
	return nil
}

func (c *imapConn) fetchRFC822(id string) (string, error) {
	c.tag++
	tag := fmt.Sprintf("A%04d", c.tag)
	line := fmt.Sprintf(tag+" FETCH %s (RFC822)\r\n", id)
	if _, err := c.conn.Write([]byte(line)); err != nil {
		return "", err
	}

	first, err := c.readLine()
	if err != nil {
		return "", err
	}
	size, ok := parseLiteralSize(first)
	if !ok {
		return "", fmt.Errorf("email: imap fetch: unexpected response %q", first)
	}

	buf := make([]byte, size)
	if _, err := ioReadFull(c.r, buf); err != nil {
		return "", err
	}
	// drain the remainder of the response up to the tagged status line.
	for {
		resp, err := c.readLine()
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(resp, tag+" ") {
			break
		}
	}
	return string(buf), nil
}

func ioReadFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func parseLiteralSize(line string) (int, bool) {
	idx := strings.LastIndex(line, "{")
	end := strings.LastIndex(line, "}")
	if idx < 0 || end < 0 || end <= idx {
		return 0, false
	}
	n, err := strconv.Atoi(line[idx+1 : end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseRFC5322 parses a raw message into an Envelope using net/mail and
// net/textproto for header handling.
func parseRFC5322(raw string) (Envelope, error) {
	m, err := mail.ReadMessage(strings.NewReader(raw))
	if err != nil {
		return Envelope{}, fmt.Errorf("email: parse message: %w", err)
	}
	header := textproto.MIMEHeader(m.Header)

	env := Envelope{
		MessageID: header.Get("Message-Id"),
		InReplyTo: header.Get("In-Reply-To"),
		Subject:   header.Get("Subject"),
	}
	if refs := header.Get("References"); refs != "" {
		env.References = strings.Fields(refs)
	}
	if from, err := mail.ParseAddress(header.Get("From")); err == nil {
		env.From = Address{Name: from.Name, Address: from.Address}
	}
	if toList, err := mail.ParseAddressList(header.Get("To")); err == nil {
		for _, a := range toList {
			env.To = append(env.To, Address{Name: a.Name, Address: a.Address})
		}
	}
	if ccList, err := mail.ParseAddressList(header.Get("Cc")); err == nil {
		for _, a := range ccList {
			env.CC = append(env.CC, Address{Name: a.Name, Address: a.Address})
		}
	}
	if date, err := m.Header.Date(); err == nil {
		env.Date = date.UTC()
	}

	var bodyBuf strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := m.Body.Read(buf)
		if n > 0 {
			bodyBuf.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	env.TextBody = bodyBuf.String()
	return env, nil
}

// MarkAsRead sets the \Seen flag on messageID within folder.
func (p *IMAPProvider) MarkAsRead(ctx context.Context, folder, messageID string) error {
	conn, err := dialIMAP(ctx, p.Config)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer conn.logout()

	if err := conn.login(p.Config.Username, p.Config.Password); err != nil {
		return err
	}
	if err := conn.selectFolder(folder); err != nil {
		return err
	}
	_, err = conn.command(`STORE %s +FLAGS (\Seen)`, messageID)
	return err
}
