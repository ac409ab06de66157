package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailroom/internal/template"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

const (
	// DefaultUnseenThreshold is how long a message may sit unread
	// before the sweep considers it stale.
	DefaultUnseenThreshold = 12 * time.Hour

	// digestMaxMessages caps how many messages a digest lists before
	// collapsing the rest into a "+N more" suffix.
	digestMaxMessages = 5
)

// UnseenMessage is one stale unread message joined with its recipient,
// as produced by the ledger-aware sweep query.
type UnseenMessage struct {
	UserID         uuid.UUID
	GroupID        uuid.UUID
	MessageID      uuid.UUID
	GroupName      string
	SenderName     string
	Content        string
	CreatedAt      time.Time
	RecipientName  string
	RecipientEmail string
}

// LedgerEntry marks that an unseen-message email already covered a
// message for a user. Entries are never updated.
type LedgerEntry struct {
	UserID    uuid.UUID
	GroupID   uuid.UUID
	MessageID uuid.UUID
}

// sweepStore is the persistence surface the sweeper needs.
type sweepStore interface {
	// StaleUnseen returns unseen messages created before the cutoff and
	// not yet recorded in the notification ledger.
	StaleUnseen(ctx context.Context, before time.Time) ([]UnseenMessage, error)
	// RecordNotified appends ledger entries for messages a digest covered.
	RecordNotified(ctx context.Context, entries []LedgerEntry) error
	// PruneLedger deletes ledger rows older than the retention window.
	PruneLedger(ctx context.Context, olderThan time.Duration) (int, error)
}

// SweepResult aggregates one sweep run.
type SweepResult struct {
	NotificationsSent int `json:"notifications_sent"`
	UsersNotified     int `json:"users_notified"`
}

// PreviewUser summarizes one would-be digest recipient in a dry run.
type PreviewUser struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	Groups       []string  `json:"groups"`
	MessageCount int       `json:"message_count"`
}

// PreviewResult is the dry-run view of a sweep.
type PreviewResult struct {
	TotalMessages  int           `json:"total_messages"`
	Users          []PreviewUser `json:"users"`
	HoursThreshold float64       `json:"hours_threshold"`
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the sweep logger. Default: discard.
func WithSweepLogger(log *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// Sweeper sends unseen-message digests.
type Sweeper struct {
	store     sweepStore
	templates templateSource
	sender    mailer.Sender
	log       *slog.Logger
	siteURL   string
}

// NewSweeper creates a sweeper.
func NewSweeper(store sweepStore, templates templateSource, sender mailer.Sender, siteURL string, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:     store,
		templates: templates,
		sender:    sender,
		log:       logger.NewNope(),
		siteURL:   strings.TrimSuffix(siteURL, "/"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// digest is one (user, group) bucket of stale messages.
type digest struct {
	userID    uuid.UUID
	groupID   uuid.UUID
	groupName string
	name      string
	email     string
	messages  []UnseenMessage
}

// Sweep sends at most one digest per (user, group). Messages already in
// the ledger never reappear, so running the sweep twice in succession
// sends nothing the second time. Ledger rows are written only after a
// successful send; a failed digest retries naturally on the next sweep.
func (s *Sweeper) Sweep(ctx context.Context, threshold time.Duration) (SweepResult, error) {
	if threshold <= 0 {
		threshold = DefaultUnseenThreshold
	}

	tmpl, err := s.templates.Get(ctx, "unseen_digest")
	if err != nil {
		return SweepResult{}, fmt.Errorf("notify: load digest template: %w", err)
	}

	messages, err := s.store.StaleUnseen(ctx, time.Now().Add(-threshold))
	if err != nil {
		return SweepResult{}, fmt.Errorf("notify: list stale unseen: %w", err)
	}

	var result SweepResult
	notifiedUsers := make(map[uuid.UUID]struct{})

	for _, dg := range groupDigests(messages) {
		if dg.email == "" {
			continue
		}

		rendered := template.Render(tmpl, map[string]string{
			"recipientName": dg.name,
			"messageCount":  strconv.Itoa(len(dg.messages)),
			"groupName":     dg.groupName,
			"messageList":   digestListHTML(dg.messages),
			"chatUrl":       s.siteURL + "/chat/" + dg.groupID.String(),
		})

		err := s.sender.Send(ctx, &mailer.Email{
			To:      []string{dg.email},
			Subject: rendered.Subject,
			HTML:    rendered.HTML,
			Text:    rendered.Text,
		})
		if err != nil {
			s.log.ErrorContext(ctx, "digest delivery failed",
				"recipient", dg.email, "group_id", dg.groupID, "error", err)
			continue
		}

		entries := make([]LedgerEntry, len(dg.messages))
		for i, m := range dg.messages {
			entries[i] = LedgerEntry{UserID: m.UserID, GroupID: m.GroupID, MessageID: m.MessageID}
		}
		if err := s.store.RecordNotified(ctx, entries); err != nil {
			s.log.ErrorContext(ctx, "failed to record digest ledger entries",
				"recipient", dg.email, "group_id", dg.groupID, "error", err)
		}

		result.NotificationsSent++
		notifiedUsers[dg.userID] = struct{}{}
	}

	result.UsersNotified = len(notifiedUsers)
	if result.NotificationsSent > 0 {
		s.log.InfoContext(ctx, "unseen sweep completed",
			"notifications_sent", result.NotificationsSent,
			"users_notified", result.UsersNotified,
		)
	}
	return result, nil
}

// Preview reports what a sweep would send without sending anything.
func (s *Sweeper) Preview(ctx context.Context, threshold time.Duration) (PreviewResult, error) {
	if threshold <= 0 {
		threshold = DefaultUnseenThreshold
	}

	messages, err := s.store.StaleUnseen(ctx, time.Now().Add(-threshold))
	if err != nil {
		return PreviewResult{}, fmt.Errorf("notify: list stale unseen: %w", err)
	}

	byUser := make(map[uuid.UUID]*PreviewUser)
	var order []uuid.UUID
	for _, m := range messages {
		pu, ok := byUser[m.UserID]
		if !ok {
			pu = &PreviewUser{UserID: m.UserID, Email: m.RecipientEmail}
			byUser[m.UserID] = pu
			order = append(order, m.UserID)
		}
		pu.MessageCount++
		if !slices.Contains(pu.Groups, m.GroupName) {
			pu.Groups = append(pu.Groups, m.GroupName)
		}
	}

	result := PreviewResult{
		TotalMessages:  len(messages),
		HoursThreshold: threshold.Hours(),
		Users:          make([]PreviewUser, 0, len(order)),
	}
	for _, id := range order {
		result.Users = append(result.Users, *byUser[id])
	}
	return result, nil
}

// PruneLedger applies the retention policy to the notification ledger.
func (s *Sweeper) PruneLedger(ctx context.Context, retention time.Duration) (int, error) {
	return s.store.PruneLedger(ctx, retention)
}

// groupDigests buckets messages by (user, group), preserving the query
// order within each bucket.
func groupDigests(messages []UnseenMessage) []*digest {
	type key struct {
		user  uuid.UUID
		group uuid.UUID
	}
	byKey := make(map[key]*digest)
	var order []key

	for _, m := range messages {
		k := key{m.UserID, m.GroupID}
		dg, ok := byKey[k]
		if !ok {
			dg = &digest{
				userID:    m.UserID,
				groupID:   m.GroupID,
				groupName: m.GroupName,
				name:      m.RecipientName,
				email:     m.RecipientEmail,
			}
			byKey[k] = dg
			order = append(order, k)
		}
		dg.messages = append(dg.messages, m)
	}

	digests := make([]*digest, len(order))
	for i, k := range order {
		digests[i] = byKey[k]
	}
	return digests
}

// digestListHTML renders up to digestMaxMessages previews with a
// "+N more" suffix for the rest.
func digestListHTML(messages []UnseenMessage) string {
	var b strings.Builder
	b.WriteString("<ul>")
	for i, m := range messages {
		if i == digestMaxMessages {
			break
		}
		fmt.Fprintf(&b, "<li><strong>%s</strong>: %s</li>",
			html.EscapeString(m.SenderName), html.EscapeString(Preview(m.Content)))
	}
	if extra := len(messages) - digestMaxMessages; extra > 0 {
		fmt.Fprintf(&b, "<li>+%d more</li>", extra)
	}
	b.WriteString("</ul>")
	return b.String()
}
