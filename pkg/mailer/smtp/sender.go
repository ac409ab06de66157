// Package smtp implements mailer.Sender over plain SMTP with STARTTLS
// or implicit TLS (port 465).
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

// Sender implements mailer.Sender over SMTP.
type Sender struct {
	config Config
}

// New creates a new SMTP sender.
func New(cfg Config) *Sender {
	return &Sender{config: cfg}
}

// Send implements mailer.Sender.
// The context is honored only up to connection establishment; net/smtp
// does not support per-command cancellation.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) error {
	if s.config.Host == "" || s.config.Username == "" {
		return mailer.ErrNotConfigured
	}
	if err := email.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	from := email.From
	if from == "" {
		from = s.config.SenderEmail
	}
	if from == "" {
		from = s.config.Username
	}

	msg := s.buildMessage(from, email)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	auth := smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)

	if s.config.Port == 465 {
		return s.sendTLS(addr, auth, from, email.To, msg)
	}

	if err := smtp.SendMail(addr, auth, from, email.To, []byte(msg)); err != nil {
		return fmt.Errorf("smtp: failed to send email: %w", err)
	}
	return nil
}

// sendTLS dials an implicit-TLS connection for port 465 servers, which
// smtp.SendMail cannot negotiate.
func (s *Sender) sendTLS(addr string, auth smtp.Auth, from string, to []string, msg string) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("smtp: tls dial: %w", err)
	}

	c, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("smtp: client: %w", err)
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp: auth: %w", err)
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp: rcpt %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp: data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp: write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: close data: %w", err)
	}
	return c.Quit()
}

func (s *Sender) buildMessage(from string, email *mailer.Email) string {
	headers := map[string]string{
		"From":         mailer.Recipient(s.config.SenderName, from),
		"To":           strings.Join(email.To, ", "),
		"Subject":      mime.QEncoding.Encode("utf-8", email.Subject),
		"MIME-Version": "1.0",
	}
	if email.ReplyTo != "" {
		headers["Reply-To"] = email.ReplyTo
	}
	for k, v := range email.Headers {
		headers[k] = v
	}

	body := email.HTML
	if body != "" {
		headers["Content-Type"] = `text/html; charset="UTF-8"`
	} else {
		body = email.Text
		headers["Content-Type"] = `text/plain; charset="UTF-8"`
	}

	var msg strings.Builder
	for k, v := range headers {
		fmt.Fprintf(&msg, "%s: %s\r\n", k, v)
	}
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return msg.String()
}
