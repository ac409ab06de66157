package queue

import "errors"

var (
	// ErrInvalidStatus indicates an unknown status filter value.
	ErrInvalidStatus = errors.New("queue: invalid status")

	// ErrNoRecipient indicates an enqueue attempt without a recipient.
	ErrNoRecipient = errors.New("queue: recipient is required")
)
