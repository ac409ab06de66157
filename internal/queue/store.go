package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/mailroom/pkg/db"
)

// Store persists jobs in the email_queue table. Once a row is
// inserted the store owns it exclusively; only the drainer transitions
// status, sent_at, and error_message.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a queue store on the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const jobColumns = `id, recipient, subject, body_html, body_text, status, scheduled_at, claimed_at, sent_at, error_message, created_at`

// EnqueueParams holds the fields of a new job.
type EnqueueParams struct {
	Recipient   string
	Subject     string
	BodyHTML    string
	BodyText    string
	ScheduledAt time.Time // zero value means due immediately
}

// Enqueue inserts a pending job. ScheduledAt defaults to now; a future
// time defers delivery until the drain query considers the job due.
func (s *Store) Enqueue(ctx context.Context, p EnqueueParams) (*Job, error) {
	if p.Recipient == "" {
		return nil, ErrNoRecipient
	}
	scheduledAt := p.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = time.Now()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO email_queue (id, recipient, subject, body_html, body_text, status, scheduled_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
		RETURNING `+jobColumns,
		uuid.New(), p.Recipient, p.Subject, p.BodyHTML, p.BodyText, scheduledAt)

	return scanJob(row)
}

// EnqueueBatch inserts one pending job per recipient in a single
// transaction, so a bulk send is all-or-nothing.
func (s *Store) EnqueueBatch(ctx context.Context, params []EnqueueParams) (int, error) {
	if len(params) == 0 {
		return 0, nil
	}

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, p := range params {
			if p.Recipient == "" {
				return ErrNoRecipient
			}
			scheduledAt := p.ScheduledAt
			if scheduledAt.IsZero() {
				scheduledAt = time.Now()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO email_queue (id, recipient, subject, body_html, body_text, status, scheduled_at)
				VALUES ($1, $2, $3, $4, $5, 'pending', $6)`,
				uuid.New(), p.Recipient, p.Subject, p.BodyHTML, p.BodyText, scheduledAt)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(params), nil
}

// ListDue returns pending jobs whose scheduled_at has passed, oldest
// first, capped at limit.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM email_queue
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// Claim atomically transitions a job from pending to sending, stamping
// claimed_at so staleness is measured from the claim. Returns false
// when another drain run already claimed it or the job left the
// pending state.
func (s *Store) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'sending', claimed_at = now()
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// MarkSent finalizes a claimed job as sent. No-op on rows already in a
// terminal state, so re-draining never resurrects or re-sends.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'sent', sent_at = $2, error_message = NULL
		WHERE id = $1 AND status IN ('pending', 'sending')`, id, sentAt)
	return err
}

// MarkFailed finalizes a claimed job as failed with the transport error
// text. Same terminal-state discipline as MarkSent.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'failed', error_message = $2
		WHERE id = $1 AND status IN ('pending', 'sending')`, id, errorMessage)
	return err
}

// ReclaimStale returns jobs claimed longer than olderThan ago back to
// pending. Covers a drain run that died between claim and finalize.
// Staleness is measured from claimed_at, never scheduled_at, so a
// backlogged job being sent right now is not reclaimable by a
// concurrent run.
func (s *Store) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE email_queue SET status = 'pending', claimed_at = NULL
		WHERE status = 'sending' AND claimed_at <= $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// List returns jobs filtered by optional status, newest first, with the
// total row count for pagination.
func (s *Store) List(ctx context.Context, status Status, limit, offset int) ([]Job, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, ErrInvalidStatus
	}

	var total int
	if err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM email_queue WHERE ($1 = '' OR status = $1)`, string(status),
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM email_queue
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	jobs, err := collectJobs(rows)
	return jobs, total, err
}

// Recent returns the latest jobs by scheduled_at descending.
func (s *Store) Recent(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM email_queue
		ORDER BY scheduled_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectJobs(rows)
}

// StatusCounts returns the aggregate sent/pending/sending/failed counts.
func (s *Store) StatusCounts(ctx context.Context) (StatusCounts, error) {
	var c StatusCounts
	err := s.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'sent'),
			count(*) FILTER (WHERE status = 'pending'),
			count(*) FILTER (WHERE status = 'sending'),
			count(*) FILTER (WHERE status = 'failed')
		FROM email_queue`,
	).Scan(&c.Sent, &c.Pending, &c.Sending, &c.Failed)
	return c, err
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.Recipient, &j.Subject, &j.BodyHTML, &j.BodyText, &j.Status, &j.ScheduledAt, &j.ClaimedAt, &j.SentAt, &j.ErrorMessage, &j.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Recipient, &j.Subject, &j.BodyHTML, &j.BodyText, &j.Status, &j.ScheduledAt, &j.ClaimedAt, &j.SentAt, &j.ErrorMessage, &j.CreatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
