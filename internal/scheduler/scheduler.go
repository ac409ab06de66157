// Package scheduler runs the recurring maintenance jobs: queue drains,
// unseen-message sweeps, and ledger pruning.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/mailroom/pkg/logger"
)

// jobTimeout bounds a single scheduled run.
const jobTimeout = 5 * time.Minute

// fiveFieldParser accepts standard crontab syntax, minute precision.
var fiveFieldParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger. Default: discard.
func WithLogger(log *slog.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// Scheduler owns the cron runner. Jobs are registered before Start and
// skipped while a previous run of the same job is still in flight.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{log: logger.NewNope()}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithParser(fiveFieldParser),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)
	return s
}

// Add registers a named job on a five-field cron schedule.
func (s *Scheduler) Add(name, schedule string, fn func(ctx context.Context) error) error {
	sched, err := fiveFieldParser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q for %s: %w", schedule, name, err)
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cronLogger{s.log})).Then(
		cron.FuncJob(func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()

			started := time.Now()
			if err := fn(ctx); err != nil {
				s.log.ErrorContext(ctx, "scheduled job failed",
					"job", name, "error", err, "duration", time.Since(started))
				return
			}
			s.log.DebugContext(ctx, "scheduled job completed",
				"job", name, "duration", time.Since(started))
		}),
	)
	s.cron.Schedule(sched, job)
	return nil
}

// Start begins running registered jobs in background goroutines.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish or the
// context to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: shutdown interrupted: %w", ctx.Err())
	}
}

// cronLogger adapts slog to the cron logging interface used by the
// recover and skip wrappers.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
