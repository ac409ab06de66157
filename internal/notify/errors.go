package notify

import "errors"

var (
	// ErrNoRecipients indicates recipient resolution produced an empty list.
	ErrNoRecipients = errors.New("notify: no recipients found")

	// ErrUnknownRecipientType indicates an unsupported recipient type value.
	ErrUnknownRecipientType = errors.New("notify: unknown recipient type")

	// ErrSweepQueryFailed indicates the stale-unseen query could not run.
	ErrSweepQueryFailed = errors.New("notify: stale unseen query failed")
)
