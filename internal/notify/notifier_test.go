package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/internal/template"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

type fakeTemplates struct {
	byName map[string]*template.Template
}

func (f *fakeTemplates) Get(_ context.Context, name string) (*template.Template, error) {
	tmpl, ok := f.byName[name]
	if !ok {
		return nil, template.ErrNotFound
	}
	return tmpl, nil
}

type fakeDirectory struct {
	users   map[uuid.UUID]User
	byRole  map[string][]User
	members map[uuid.UUID][]User
	groups  map[uuid.UUID]string
}

func (d *fakeDirectory) UserByID(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, errors.New("user not found")
	}
	return &u, nil
}

func (d *fakeDirectory) UsersAll(_ context.Context) ([]User, error) {
	var all []User
	for _, u := range d.users {
		all = append(all, u)
	}
	return all, nil
}

func (d *fakeDirectory) UsersByRole(_ context.Context, role string) ([]User, error) {
	return d.byRole[role], nil
}

func (d *fakeDirectory) GroupMembers(_ context.Context, groupID uuid.UUID, exclude uuid.UUID) ([]User, error) {
	var out []User
	for _, u := range d.members[groupID] {
		if u.ID != exclude {
			out = append(out, u)
		}
	}
	return out, nil
}

func (d *fakeDirectory) GroupName(_ context.Context, groupID uuid.UUID) (string, error) {
	name, ok := d.groups[groupID]
	if !ok {
		return "", errors.New("group not found")
	}
	return name, nil
}

// recordingSender captures sent emails and fails addresses on demand.
type recordingSender struct {
	mu     sync.Mutex
	sent   []*mailer.Email
	failTo map[string]error
}

func (s *recordingSender) Send(_ context.Context, email *mailer.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, to := range email.To {
		if err, ok := s.failTo[to]; ok {
			return err
		}
	}
	s.sent = append(s.sent, email)
	return nil
}

func (s *recordingSender) recipients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.sent {
		out = append(out, e.To...)
	}
	return out
}

func strptr(s string) *string { return &s }

func chatTemplates() *fakeTemplates {
	return &fakeTemplates{byName: map[string]*template.Template{
		"chat_message": {
			Name:     "chat_message",
			Subject:  "New message in {{groupName}}",
			BodyHTML: "<p>{{senderName}}: {{messagePreview}}</p><a href=\"{{chatUrl}}\">Open</a>",
			BodyText: "{{senderName}}: {{messagePreview}}",
		},
		"role_changed": {
			Name:     "role_changed",
			Subject:  "Your role is now {{roleName}}",
			BodyHTML: "<p>Hi {{recipientName}}, your role is now {{roleName}}.</p>",
		},
	}}
}

func TestNotifierPrefersPersonalEmail(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	dir := &fakeDirectory{users: map[uuid.UUID]User{
		userID: {
			ID:            userID,
			Email:         strptr("work@corp.test"),
			PersonalEmail: strptr("home@gmail.test"),
			FullName:      "Dana",
		},
	}}
	sender := &recordingSender{}
	n := NewNotifier(chatTemplates(), dir, sender, "https://app.test")

	require.NoError(t, n.RoleChanged(context.Background(), userID, "moderator"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"home@gmail.test"}, sender.sent[0].To)
	assert.Equal(t, "Your role is now moderator", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTML, "Hi Dana")
}

func TestNotifierFallsBackToLoginEmail(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	dir := &fakeDirectory{users: map[uuid.UUID]User{
		userID: {ID: userID, Email: strptr("work@corp.test"), FullName: "Lee"},
	}}
	sender := &recordingSender{}
	n := NewNotifier(chatTemplates(), dir, sender, "https://app.test")

	require.NoError(t, n.RoleChanged(context.Background(), userID, "viewer"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, []string{"work@corp.test"}, sender.sent[0].To)
}

func TestChatMessagePostedExcludesSenderAndIsolatesFailures(t *testing.T) {
	t.Parallel()

	groupID := uuid.New()
	senderID := uuid.New()
	a := User{ID: uuid.New(), Email: strptr("a@test"), FullName: "A"}
	b := User{ID: uuid.New(), Email: strptr("b@test"), FullName: "B"}
	c := User{ID: uuid.New(), Email: strptr("c@test"), FullName: "C"}
	author := User{ID: senderID, Email: strptr("author@test"), FullName: "Author"}

	dir := &fakeDirectory{
		users:   map[uuid.UUID]User{senderID: author},
		groups:  map[uuid.UUID]string{groupID: "General"},
		members: map[uuid.UUID][]User{groupID: {a, b, c, author}},
	}
	sender := &recordingSender{failTo: map[string]error{"b@test": errors.New("mailbox full")}}
	n := NewNotifier(chatTemplates(), dir, sender, "https://app.test")

	err := n.ChatMessagePosted(context.Background(), groupID, senderID, "hello everyone")
	require.NoError(t, err, "one failed delivery must not fail the trigger")

	got := sender.recipients()
	assert.ElementsMatch(t, []string{"a@test", "c@test"}, got)
	assert.NotContains(t, got, "author@test")
	assert.Contains(t, sender.sent[0].Subject, "General")
	assert.Contains(t, sender.sent[0].HTML, "https://app.test/chat/"+groupID.String())
}

func TestResolveRecipients(t *testing.T) {
	t.Parallel()

	u1 := User{ID: uuid.New(), Email: strptr("one@test"), FullName: "One"}
	u2 := User{ID: uuid.New(), Email: strptr("two@test"), PersonalEmail: strptr("two.home@test"), FullName: "Two"}
	dir := &fakeDirectory{
		users:  map[uuid.UUID]User{u1.ID: u1, u2.ID: u2},
		byRole: map[string][]User{"admin": {u2}},
	}
	n := NewNotifier(chatTemplates(), dir, &recordingSender{}, "https://app.test")
	ctx := context.Background()

	t.Run("single", func(t *testing.T) {
		addrs, err := n.ResolveRecipients(ctx, RecipientSingle, "direct@test")
		require.NoError(t, err)
		assert.Equal(t, []string{"direct@test"}, addrs)
	})

	t.Run("single empty", func(t *testing.T) {
		_, err := n.ResolveRecipients(ctx, RecipientSingle, "")
		assert.ErrorIs(t, err, ErrNoRecipients)
	})

	t.Run("all uses personal email", func(t *testing.T) {
		addrs, err := n.ResolveRecipients(ctx, RecipientAll, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"one@test", "two.home@test"}, addrs)
	})

	t.Run("role", func(t *testing.T) {
		addrs, err := n.ResolveRecipients(ctx, RecipientRole, "admin")
		require.NoError(t, err)
		assert.Equal(t, []string{"two.home@test"}, addrs)
	})

	t.Run("role with no members", func(t *testing.T) {
		_, err := n.ResolveRecipients(ctx, RecipientRole, "ghost")
		assert.ErrorIs(t, err, ErrNoRecipients)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := n.ResolveRecipients(ctx, RecipientType("broadcast"), "")
		assert.ErrorIs(t, err, ErrUnknownRecipientType)
	})
}

func TestFanOutSkipsUnreachableRecipients(t *testing.T) {
	t.Parallel()

	groupID := uuid.New()
	creatorID := uuid.New()
	reachable := User{ID: uuid.New(), Email: strptr("ok@test"), FullName: "OK"}
	unreachable := User{ID: uuid.New(), FullName: "Ghost"}

	dir := &fakeDirectory{
		groups:  map[uuid.UUID]string{groupID: "Launch"},
		members: map[uuid.UUID][]User{groupID: {reachable, unreachable}},
	}
	tmpls := &fakeTemplates{byName: map[string]*template.Template{
		"chat_group_created": {
			Name:     "chat_group_created",
			Subject:  "Added to {{groupName}}",
			BodyHTML: "<p>{{recipientName}}, you joined {{groupName}}.</p>",
		},
	}}
	sender := &recordingSender{}
	n := NewNotifier(tmpls, dir, sender, "https://app.test")

	require.NoError(t, n.ChatGroupCreated(context.Background(), groupID, creatorID))
	assert.Equal(t, []string{"ok@test"}, sender.recipients())
}

func TestFanOutMissingTemplateFails(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	dir := &fakeDirectory{users: map[uuid.UUID]User{
		userID: {ID: userID, Email: strptr("x@test"), FullName: "X"},
	}}
	n := NewNotifier(&fakeTemplates{byName: map[string]*template.Template{}}, dir, &recordingSender{}, "https://app.test")

	err := n.RoleChanged(context.Background(), userID, "admin")
	assert.ErrorIs(t, err, template.ErrNotFound)
}

func TestPreviewTruncation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Preview("  short  "))

	long := strings.Repeat("x", 200)
	got := Preview(long)
	assert.Equal(t, strings.Repeat("x", 120)+"…", got)

	// Truncation counts runes, not bytes.
	cyrillic := strings.Repeat("ж", 130)
	assert.Equal(t, strings.Repeat("ж", 120)+"…", Preview(cyrillic))
}
