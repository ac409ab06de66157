package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/mailroom/internal/template"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

const (
	defaultFanOutLimit = 8
	previewMaxLen      = 120
)

// templateSource is the slice of the template store the notifier needs.
type templateSource interface {
	Get(ctx context.Context, name string) (*template.Template, error)
}

// RecipientType selects how the bulk send path resolves recipients.
type RecipientType string

const (
	RecipientSingle RecipientType = "single"
	RecipientAll    RecipientType = "all"
	RecipientRole   RecipientType = "role"
)

// Option configures a Notifier.
type Option func(*Notifier)

// WithFanOutLimit bounds how many recipient sends run concurrently.
// Default: 8.
func WithFanOutLimit(n int) Option {
	return func(nt *Notifier) {
		if n > 0 {
			nt.fanOutLimit = n
		}
	}
}

// WithLogger sets the notifier logger. Default: discard.
func WithLogger(log *slog.Logger) Option {
	return func(nt *Notifier) {
		if log != nil {
			nt.log = log
		}
	}
}

// Notifier synthesizes one email per recipient for domain events.
type Notifier struct {
	templates   templateSource
	dir         Directory
	sender      mailer.Sender
	log         *slog.Logger
	siteURL     string
	fanOutLimit int
}

// NewNotifier creates a notifier. siteURL is the base used to build
// in-email deep links.
func NewNotifier(templates templateSource, dir Directory, sender mailer.Sender, siteURL string, opts ...Option) *Notifier {
	n := &Notifier{
		templates:   templates,
		dir:         dir,
		sender:      sender,
		log:         logger.NewNope(),
		siteURL:     strings.TrimSuffix(siteURL, "/"),
		fanOutLimit: defaultFanOutLimit,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ChatMessagePosted notifies every group member except the sender.
func (n *Notifier) ChatMessagePosted(ctx context.Context, groupID, senderID uuid.UUID, content string) error {
	sender, err := n.dir.UserByID(ctx, senderID)
	if err != nil {
		return fmt.Errorf("notify: resolve sender: %w", err)
	}
	groupName, err := n.dir.GroupName(ctx, groupID)
	if err != nil {
		return fmt.Errorf("notify: resolve group: %w", err)
	}
	members, err := n.dir.GroupMembers(ctx, groupID, senderID)
	if err != nil {
		return fmt.Errorf("notify: resolve members: %w", err)
	}

	return n.fanOut(ctx, "chat_message", members, func(u User) map[string]string {
		return map[string]string{
			"senderName":     sender.FullName,
			"groupName":      groupName,
			"messagePreview": Preview(content),
			"chatUrl":        n.siteURL + "/chat/" + groupID.String(),
		}
	})
}

// ChatGroupCreated notifies every member of a new group except its creator.
func (n *Notifier) ChatGroupCreated(ctx context.Context, groupID, creatorID uuid.UUID) error {
	groupName, err := n.dir.GroupName(ctx, groupID)
	if err != nil {
		return fmt.Errorf("notify: resolve group: %w", err)
	}
	members, err := n.dir.GroupMembers(ctx, groupID, creatorID)
	if err != nil {
		return fmt.Errorf("notify: resolve members: %w", err)
	}

	return n.fanOut(ctx, "chat_group_created", members, func(u User) map[string]string {
		return map[string]string{
			"recipientName": u.FullName,
			"groupName":     groupName,
			"chatUrl":       n.siteURL + "/chat/" + groupID.String(),
		}
	})
}

// RoleChanged notifies a user that their role assignment changed.
func (n *Notifier) RoleChanged(ctx context.Context, userID uuid.UUID, roleName string) error {
	user, err := n.dir.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolve user: %w", err)
	}

	return n.fanOut(ctx, "role_changed", []User{*user}, func(u User) map[string]string {
		return map[string]string{
			"recipientName": u.FullName,
			"roleName":      roleName,
			"siteUrl":       n.siteURL,
		}
	})
}

// TicketAssigned notifies the new assignee of a support ticket.
func (n *Notifier) TicketAssigned(ctx context.Context, assigneeID uuid.UUID, ticketID, ticketTitle string) error {
	user, err := n.dir.UserByID(ctx, assigneeID)
	if err != nil {
		return fmt.Errorf("notify: resolve assignee: %w", err)
	}

	return n.fanOut(ctx, "ticket_assigned", []User{*user}, func(u User) map[string]string {
		return map[string]string{
			"recipientName": u.FullName,
			"ticketId":      ticketID,
			"ticketTitle":   ticketTitle,
			"ticketUrl":     n.siteURL + "/tickets/" + ticketID,
		}
	})
}

// RegistrationDecided notifies a user of their registration outcome.
// reason is included only on rejection.
func (n *Notifier) RegistrationDecided(ctx context.Context, userID uuid.UUID, approved bool, reason string) error {
	user, err := n.dir.UserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("notify: resolve user: %w", err)
	}

	tmplName := "registration_approved"
	vars := func(u User) map[string]string {
		return map[string]string{
			"recipientName": u.FullName,
			"siteUrl":       n.siteURL,
		}
	}
	if !approved {
		tmplName = "registration_rejected"
		vars = func(u User) map[string]string {
			return map[string]string{
				"recipientName": u.FullName,
				"reason":        reason,
			}
		}
	}

	return n.fanOut(ctx, tmplName, []User{*user}, vars)
}

// ResolveRecipients resolves the bulk send path's recipient list to
// notification addresses. Personal email preference applies everywhere.
func (n *Notifier) ResolveRecipients(ctx context.Context, typ RecipientType, target string) ([]string, error) {
	var users []User
	switch typ {
	case RecipientSingle:
		if target == "" {
			return nil, ErrNoRecipients
		}
		return []string{target}, nil
	case RecipientAll:
		all, err := n.dir.UsersAll(ctx)
		if err != nil {
			return nil, err
		}
		users = all
	case RecipientRole:
		byRole, err := n.dir.UsersByRole(ctx, target)
		if err != nil {
			return nil, err
		}
		users = byRole
	default:
		return nil, ErrUnknownRecipientType
	}

	addrs := make([]string, 0, len(users))
	for i := range users {
		if addr := users[i].NotifyAddress(); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	if len(addrs) == 0 {
		return nil, ErrNoRecipients
	}
	return addrs, nil
}

// fanOut renders the named template per recipient and sends with
// bounded concurrency. Completion is awaited; delivery failures are
// logged per recipient and never returned, so the caller's primary
// action is unaffected.
func (n *Notifier) fanOut(ctx context.Context, tmplName string, recipients []User, vars func(User) map[string]string) error {
	if len(recipients) == 0 {
		return nil
	}

	tmpl, err := n.templates.Get(ctx, tmplName)
	if err != nil {
		return fmt.Errorf("notify: load template %q: %w", tmplName, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(n.fanOutLimit)

	for i := range recipients {
		user := recipients[i]
		addr := user.NotifyAddress()
		if addr == "" {
			n.log.WarnContext(ctx, "recipient has no reachable address",
				"template", tmplName, "user_id", user.ID)
			continue
		}

		g.Go(func() error {
			rendered := template.Render(tmpl, vars(user))
			err := n.sender.Send(ctx, &mailer.Email{
				To:      []string{addr},
				Subject: rendered.Subject,
				HTML:    rendered.HTML,
				Text:    rendered.Text,
			})
			if err != nil {
				n.log.ErrorContext(ctx, "notification delivery failed",
					"template", tmplName, "recipient", addr, "error", err)
			}
			// Failures stay isolated per recipient.
			return nil
		})
	}

	return g.Wait()
}

// Preview truncates message content for digest and notification bodies.
func Preview(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= previewMaxLen {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewMaxLen]) + "…"
}
