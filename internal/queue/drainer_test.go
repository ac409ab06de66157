package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

// MockSender is a mock implementation of mailer.Sender.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, email *mailer.Email) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

// fakeStore is an in-memory drainStore with the same claim and
// terminal-state discipline as the Postgres store.
type fakeStore struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*Job
	claimDeny  map[uuid.UUID]bool
	reclaimErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:      make(map[uuid.UUID]*Job),
		claimDeny: make(map[uuid.UUID]bool),
	}
}

func (f *fakeStore) add(recipient, subject, body string, scheduledAt time.Time) *Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := &Job{
		ID:          uuid.New(),
		Recipient:   recipient,
		Subject:     subject,
		BodyHTML:    body,
		Status:      StatusPending,
		ScheduledAt: scheduledAt,
		CreatedAt:   time.Now(),
	}
	f.jobs[j.ID] = j
	return j
}

func (f *fakeStore) ListDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []Job
	for _, j := range f.jobs {
		if j.Status == StatusPending && !j.ScheduledAt.After(now) && len(due) < limit {
			due = append(due, *j)
		}
	}
	return due, nil
}

func (f *fakeStore) addSending(recipient string, claimedAt time.Time) *Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := &Job{
		ID:          uuid.New(),
		Recipient:   recipient,
		Subject:     "Test",
		BodyHTML:    "Hello",
		Status:      StatusSending,
		ScheduledAt: time.Now().Add(-time.Hour),
		ClaimedAt:   &claimedAt,
		CreatedAt:   time.Now(),
	}
	f.jobs[j.ID] = j
	return j
}

func (f *fakeStore) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != StatusPending || f.claimDeny[id] {
		return false, nil
	}
	now := time.Now()
	j.Status = StatusSending
	j.ClaimedAt = &now
	return true, nil
}

func (f *fakeStore) MarkSent(_ context.Context, id uuid.UUID, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok && (j.Status == StatusPending || j.Status == StatusSending) {
		j.Status = StatusSent
		j.SentAt = &sentAt
		j.ErrorMessage = nil
	}
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok && (j.Status == StatusPending || j.Status == StatusSending) {
		j.Status = StatusFailed
		j.ErrorMessage = &errorMessage
	}
	return nil
}

func (f *fakeStore) ReclaimStale(_ context.Context, olderThan time.Duration) (int, error) {
	if f.reclaimErr != nil {
		return 0, f.reclaimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	reclaimed := 0
	for _, j := range f.jobs {
		if j.Status == StatusSending && j.ClaimedAt != nil && !j.ClaimedAt.After(cutoff) {
			j.Status = StatusPending
			j.ClaimedAt = nil
			reclaimed++
		}
	}
	return reclaimed, nil
}

func (f *fakeStore) get(id uuid.UUID) Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.jobs[id]
}

func TestDrainer_Drain_AllSuccessful(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	a := store.add("a@x.com", "Test", "Hello", time.Now())
	b := store.add("b@x.com", "Test", "Hello", time.Now())
	c := store.add("c@x.com", "Test", "Hello", time.Now())

	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil).Times(3)

	d := NewDrainer(store, sender)
	summary, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 3, Successful: 3, Failed: 0}, summary)

	for _, id := range []uuid.UUID{a.ID, b.ID, c.ID} {
		job := store.get(id)
		require.Equal(t, StatusSent, job.Status)
		require.NotNil(t, job.SentAt)
	}
	sender.AssertExpectations(t)
}

func TestDrainer_Drain_PartialFailureIsolation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	ok1 := store.add("a@x.com", "Test", "Hello", time.Now())
	bad := store.add("bad@x.com", "Test", "Hello", time.Now())
	ok2 := store.add("c@x.com", "Test", "Hello", time.Now())

	sender := &MockSender{}
	sendErr := errors.New("provider rejected recipient")
	sender.On("Send", mock.Anything, mock.MatchedBy(func(e *mailer.Email) bool {
		return e.To[0] == "bad@x.com"
	})).Return(sendErr)
	sender.On("Send", mock.Anything, mock.Anything).Return(nil)

	d := NewDrainer(store, sender)
	summary, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 2, summary.Successful)
	require.Equal(t, 1, summary.Failed)

	require.Equal(t, StatusSent, store.get(ok1.ID).Status)
	require.Equal(t, StatusSent, store.get(ok2.ID).Status)

	failed := store.get(bad.ID)
	require.Equal(t, StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	require.Contains(t, *failed.ErrorMessage, "provider rejected")
}

func TestDrainer_Drain_SecondRunIsNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.add("a@x.com", "Test", "Hello", time.Now())

	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	d := NewDrainer(store, sender)
	first, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{}, second)
	sender.AssertNumberOfCalls(t, "Send", 1)
}

func TestDrainer_Drain_HonorsScheduledAt(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.add("future@x.com", "Later", "Hello", time.Now().Add(time.Hour))
	due := store.add("now@x.com", "Now", "Hello", time.Now())

	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.MatchedBy(func(e *mailer.Email) bool {
		return e.To[0] == "now@x.com"
	})).Return(nil).Once()

	d := NewDrainer(store, sender)
	summary, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, StatusSent, store.get(due.ID).Status)
	sender.AssertExpectations(t)
}

func TestDrainer_Drain_SkipsJobsClaimedElsewhere(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	j := store.add("a@x.com", "Test", "Hello", time.Now())
	store.claimDeny[j.ID] = true

	sender := &MockSender{}
	d := NewDrainer(store, sender)

	summary, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{}, summary)
	sender.AssertNotCalled(t, "Send")
}

func TestDrainer_SendNow(t *testing.T) {
	t.Parallel()

	t.Run("delivers and finalizes", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		j := store.add("a@x.com", "Test", "Hello", time.Now())

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

		d := NewDrainer(store, sender)
		require.NoError(t, d.SendNow(context.Background(), j))
		require.Equal(t, StatusSent, store.get(j.ID).Status)
	})

	t.Run("reports transport failure", func(t *testing.T) {
		t.Parallel()
		store := newFakeStore()
		j := store.add("a@x.com", "Test", "Hello", time.Now())

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(errors.New("boom")).Once()

		d := NewDrainer(store, sender)
		err := d.SendNow(context.Background(), j)
		require.ErrorIs(t, err, mailer.ErrSendFailed)
		require.Equal(t, StatusFailed, store.get(j.ID).Status)
	})
}

func TestDrainer_Drain_ReclaimsStaleSending(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	stuck := store.addSending("stuck@x.com", time.Now().Add(-time.Hour))

	sender := &MockSender{}
	sender.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	d := NewDrainer(store, sender, WithStaleAfter(10*time.Minute))
	summary, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{Processed: 1, Successful: 1}, summary)
	require.Equal(t, StatusSent, store.get(stuck.ID).Status)
	sender.AssertExpectations(t)
}

func TestDrainer_Drain_LeavesRecentClaimsAlone(t *testing.T) {
	t.Parallel()

	// A backlogged job (scheduled well in the past) claimed moments ago
	// by another run must not be reclaimed mid-send: staleness is
	// measured from the claim, not from when the job was due.
	store := newFakeStore()
	inflight := store.addSending("inflight@x.com", time.Now().Add(-time.Minute))

	sender := &MockSender{}

	d := NewDrainer(store, sender, WithStaleAfter(10*time.Minute))
	summary, err := d.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, Summary{}, summary)

	job := store.get(inflight.ID)
	require.Equal(t, StatusSending, job.Status)
	require.NotNil(t, job.ClaimedAt)
	sender.AssertNotCalled(t, "Send")
}
