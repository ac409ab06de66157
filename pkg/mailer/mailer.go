package mailer

import (
	"context"
	"fmt"
)

// Sender defines the minimal interface that transport backends implement.
// It accepts a fully-prepared Email and handles the actual delivery.
type Sender interface {
	// Send delivers an email message.
	// The Email must have To, Subject, and HTML or Text already set.
	// Returns an error if delivery fails.
	Send(ctx context.Context, email *Email) error
}

// Email represents a fully-prepared email message ready for sending.
type Email struct {
	Headers map[string]string // Custom headers
	Subject string            // Email subject
	HTML    string            // HTML body content
	Text    string            // Plain text alternative
	From    string            // Override default sender (if backend allows)
	ReplyTo string            // Reply-to address
	To      []string          // Recipients (at least one required)
}

// Validate reports whether the email carries the minimum required fields.
func (e *Email) Validate() error {
	if len(e.To) == 0 {
		return ErrNoRecipient
	}
	if e.Subject == "" {
		return ErrNoSubject
	}
	if e.HTML == "" && e.Text == "" {
		return ErrNoContent
	}
	return nil
}

// Recipient formats a name and email into RFC 5322 address format.
// Returns "Name <email>" if name is provided, otherwise just email.
func Recipient(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
