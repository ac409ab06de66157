package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
)

const (
	defaultBatchLimit = 100
	defaultStaleAfter = 15 * time.Minute
)

// drainStore is the slice of Store the drainer needs. Narrow so tests
// can fake it without a database.
type drainStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]Job, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Summary aggregates the outcome of one drain run.
type Summary struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Option configures a Drainer.
type Option func(*Drainer)

// WithBatchLimit caps how many due jobs one drain run picks up.
// Default: 100.
func WithBatchLimit(n int) Option {
	return func(d *Drainer) {
		if n > 0 {
			d.batchLimit = n
		}
	}
}

// WithStaleAfter sets how long a job may sit in sending before a drain
// run returns it to pending. Default: 15 minutes.
func WithStaleAfter(dur time.Duration) Option {
	return func(d *Drainer) {
		if dur > 0 {
			d.staleAfter = dur
		}
	}
}

// WithLogger sets the drain logger. Default: discard.
func WithLogger(log *slog.Logger) Option {
	return func(d *Drainer) {
		if log != nil {
			d.log = log
		}
	}
}

// Drainer turns pending jobs into sent or failed outcomes.
type Drainer struct {
	store      drainStore
	sender     mailer.Sender
	log        *slog.Logger
	batchLimit int
	staleAfter time.Duration
}

// NewDrainer creates a drainer over the given store and transport.
func NewDrainer(store drainStore, sender mailer.Sender, opts ...Option) *Drainer {
	d := &Drainer{
		store:      store,
		sender:     sender,
		log:        logger.NewNope(),
		batchLimit: defaultBatchLimit,
		staleAfter: defaultStaleAfter,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Drain picks up due pending jobs and delivers them sequentially. Each
// job is claimed before dispatch; jobs claimed by a concurrent run are
// skipped and not counted. A transport failure marks that job failed
// and never aborts the batch.
func (d *Drainer) Drain(ctx context.Context) (Summary, error) {
	if n, err := d.store.ReclaimStale(ctx, d.staleAfter); err != nil {
		d.log.WarnContext(ctx, "failed to reclaim stale jobs", "error", err)
	} else if n > 0 {
		d.log.InfoContext(ctx, "reclaimed stale jobs", "count", n)
	}

	jobs, err := d.store.ListDue(ctx, time.Now(), d.batchLimit)
	if err != nil {
		return Summary{}, err
	}

	var summary Summary
	for i := range jobs {
		job := &jobs[i]

		claimed, err := d.store.Claim(ctx, job.ID)
		if err != nil {
			d.log.ErrorContext(ctx, "failed to claim job", "job_id", job.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}

		summary.Processed++
		if d.deliver(ctx, job) {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}

	if summary.Processed > 0 {
		d.log.InfoContext(ctx, "queue drained",
			"processed", summary.Processed,
			"successful", summary.Successful,
			"failed", summary.Failed,
		)
	}
	return summary, nil
}

// SendNow claims and delivers a single freshly-enqueued job, for the
// immediate send path. Returns the delivery error, if any; the job row
// is finalized either way.
func (d *Drainer) SendNow(ctx context.Context, job *Job) error {
	claimed, err := d.store.Claim(ctx, job.ID)
	if err != nil {
		return err
	}
	if !claimed {
		// Someone else already took it; nothing left to do here.
		return nil
	}
	if d.deliver(ctx, job) {
		return nil
	}
	return mailer.ErrSendFailed
}

// deliver sends one claimed job and finalizes its row. Reports success.
func (d *Drainer) deliver(ctx context.Context, job *Job) bool {
	email := &mailer.Email{
		To:      []string{job.Recipient},
		Subject: job.Subject,
		HTML:    job.BodyHTML,
		Text:    job.BodyText,
	}

	if err := d.sender.Send(ctx, email); err != nil {
		d.log.WarnContext(ctx, "delivery failed",
			"job_id", job.ID, "recipient", job.Recipient, "error", err)
		if mErr := d.store.MarkFailed(ctx, job.ID, err.Error()); mErr != nil {
			d.log.ErrorContext(ctx, "failed to record delivery failure", "job_id", job.ID, "error", mErr)
		}
		return false
	}

	if err := d.store.MarkSent(ctx, job.ID, time.Now()); err != nil {
		d.log.ErrorContext(ctx, "failed to record delivery success", "job_id", job.ID, "error", err)
	}
	return true
}
