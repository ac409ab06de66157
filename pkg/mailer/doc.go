// Package mailer provides a uniform email sending interface over
// interchangeable transport backends.
//
// The package separates the email contract from the transport, so the
// rest of the application never knows which provider is in effect.
// Exactly one backend is active per deployment, selected by
// configuration.
//
// # Architecture
//
//   - Sender: interface that transport backends implement
//   - Email: fully-prepared message passed to a Sender
//   - resend.Sender: provider-API backend (Resend)
//   - smtp.Sender: SMTP backend (host identity + app password)
//
// # Usage
//
//	sender := resend.New(resend.Config{
//		APIKey:      os.Getenv("RESEND_API_KEY"),
//		SenderEmail: "noreply@example.com",
//		SenderName:  "Example",
//	})
//
//	err := sender.Send(ctx, &mailer.Email{
//		To:      []string{"user@example.com"},
//		Subject: "Welcome",
//		HTML:    "<p>Hello!</p>",
//	})
//
// # Custom Backends
//
// Implement the Sender interface to add another provider:
//
//	type MySender struct{}
//
//	func (s *MySender) Send(ctx context.Context, email *mailer.Email) error {
//		// deliver via your provider's API
//		return nil
//	}
//
// # Failure Policy
//
// Senders return transport errors (auth failure, network failure,
// provider rejection) as plain errors. Callers that process batches
// must capture the error per message and continue; a Sender never
// panics past this boundary.
package mailer
