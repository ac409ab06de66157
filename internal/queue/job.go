package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a queued email.
type Status string

const (
	// StatusPending marks a job waiting to be delivered.
	StatusPending Status = "pending"
	// StatusSending marks a job claimed by a drain run.
	StatusSending Status = "sending"
	// StatusSent is terminal: the transport accepted the message.
	StatusSent Status = "sent"
	// StatusFailed is terminal: the transport rejected the message.
	StatusFailed Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSending, StatusSent, StatusFailed:
		return true
	}
	return false
}

// Job is one persisted unit of outbound email work. One row per
// (recipient, notification instance); rows are never shared across
// recipients.
type Job struct {
	ID           uuid.UUID  `json:"id"`
	Recipient    string     `json:"recipient"`
	Subject      string     `json:"subject"`
	BodyHTML     string     `json:"bodyHtml"`
	BodyText     string     `json:"bodyText"`
	Status       Status     `json:"status"`
	ScheduledAt  time.Time  `json:"scheduledAt"`
	ClaimedAt    *time.Time `json:"claimedAt,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	ErrorMessage *string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// StatusCounts is the aggregate queue snapshot used for observability.
type StatusCounts struct {
	Sent    int `json:"sent"`
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Failed  int `json:"failed"`
}
