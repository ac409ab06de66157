package smtp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

func TestSender_Send_NotConfigured(t *testing.T) {
	t.Parallel()

	s := New(Config{})
	err := s.Send(context.Background(), &mailer.Email{
		To:      []string{"a@example.com"},
		Subject: "Hi",
		HTML:    "<p>Hi</p>",
	})
	require.ErrorIs(t, err, mailer.ErrNotConfigured)
}

func TestSender_Send_RejectsInvalidEmail(t *testing.T) {
	t.Parallel()

	s := New(Config{Host: "smtp.example.com", Port: 587, Username: "mail@example.com", Password: "secret"})

	err := s.Send(context.Background(), &mailer.Email{
		Subject: "Hi",
		HTML:    "<p>Hi</p>",
	})
	require.ErrorIs(t, err, mailer.ErrNoRecipient)

	err = s.Send(context.Background(), &mailer.Email{
		To:      []string{"a@example.com"},
		Subject: "Hi",
	})
	require.ErrorIs(t, err, mailer.ErrNoContent)
}

func TestSender_BuildMessage_HTML(t *testing.T) {
	t.Parallel()

	s := New(Config{Host: "smtp.example.com", Username: "mail@example.com", SenderName: "Mailroom"})
	msg := s.buildMessage("mail@example.com", &mailer.Email{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Hello",
		HTML:    "<p>Hello</p>",
		Text:    "Hello",
	})

	require.Contains(t, msg, "From: Mailroom <mail@example.com>\r\n")
	require.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	require.Contains(t, msg, `Content-Type: text/html; charset="UTF-8"`)
	require.True(t, strings.HasSuffix(msg, "\r\n<p>Hello</p>"))
}

func TestSender_BuildMessage_TextFallback(t *testing.T) {
	t.Parallel()

	s := New(Config{Host: "smtp.example.com", Username: "mail@example.com"})
	msg := s.buildMessage("mail@example.com", &mailer.Email{
		To:      []string{"a@example.com"},
		Subject: "Hello",
		Text:    "plain body",
	})

	require.Contains(t, msg, `Content-Type: text/plain; charset="UTF-8"`)
	require.True(t, strings.HasSuffix(msg, "\r\nplain body"))
}
