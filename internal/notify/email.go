package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"

	logx "daywatch/pkg/logx"
)

const emailTimeout = 15 * time.Second

type EmailConfig struct {
	Enabled    bool
	SMTPServer string
	SMTPPort   int
	UseTLS     bool
	Sender     string
	Password   string
	Recipient  string
}

// EmailChannel delivers notifications over SMTP with a plain + HTML
// alternative body. Priority is surfaced as a subject prefix.
type EmailChannel struct {
	cfg EmailConfig
	log logx.Logger
}

func NewEmailChannel(cfg EmailConfig, log logx.Logger) *EmailChannel {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.SMTPServer == "" {
		cfg.SMTPServer = "smtp.gmail.com"
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	if cfg.Enabled && (cfg.Sender == "" || cfg.Password == "" || cfg.Recipient == "") {
		log.Warn("email channel enabled but credentials incomplete; disabling")
		cfg.Enabled = false
	}
	return &EmailChannel{cfg: cfg, log: log}
}

func (c *EmailChannel) Name() string  { return "email" }
func (c *EmailChannel) Enabled() bool { return c.cfg.Enabled }

func (c *EmailChannel) Send(ctx context.Context, title, message string, prio Priority) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.SMTPServer, c.cfg.SMTPPort)

	d := net.Dialer{Timeout: emailTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	// Deadline covers the whole SMTP conversation, not just the dial.
	_ = conn.SetDeadline(time.Now().Add(emailTimeout))

	cl, err := smtp.NewClient(conn, c.cfg.SMTPServer)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer cl.Close()

	if c.cfg.UseTLS {
		if err := cl.StartTLS(&tls.Config{ServerName: c.cfg.SMTPServer}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	auth := smtp.PlainAuth("", c.cfg.Sender, c.cfg.Password, c.cfg.SMTPServer)
	if err := cl.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := cl.Mail(c.cfg.Sender); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := cl.Rcpt(c.cfg.Recipient); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}
	w, err := cl.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(c.compose(title, message, prio)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return cl.Quit()
}

func (c *EmailChannel) compose(title, message string, prio Priority) []byte {
	subject := subjectPrefix(prio) + title
	const boundary = "daywatch-alt-1"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", c.cfg.Sender)
	fmt.Fprintf(&b, "To: %s\r\n", c.cfg.Recipient)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b,
		"<html><body style=\"font-family: sans-serif;\"><h2>%s</h2><div style=\"white-space: pre-wrap;\">%s</div><hr><p style=\"color:#7f8c8d;font-size:0.9em;\">Automated notification from daywatch.</p></body></html>\r\n",
		html.EscapeString(title), html.EscapeString(message))

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

func subjectPrefix(p Priority) string {
	switch p {
	case PriorityHigh:
		return "[IMPORTANT] "
	case PriorityCritical:
		return "[URGENT] "
	default:
		return ""
	}
}
