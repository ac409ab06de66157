// mailroom is the email queue and notification dispatch service behind
// the admin panel: it drains the durable outbound queue, fans out
// event notifications, and sends unseen-message digests.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/mailroom/internal/config"
	"github.com/dmitrymomot/mailroom/internal/handler"
	"github.com/dmitrymomot/mailroom/internal/migrations"
	"github.com/dmitrymomot/mailroom/internal/notify"
	"github.com/dmitrymomot/mailroom/internal/queue"
	"github.com/dmitrymomot/mailroom/internal/scheduler"
	"github.com/dmitrymomot/mailroom/internal/template"
	"github.com/dmitrymomot/mailroom/pkg/cache"
	"github.com/dmitrymomot/mailroom/pkg/db"
	"github.com/dmitrymomot/mailroom/pkg/health"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer"
	"github.com/dmitrymomot/mailroom/pkg/mailer/resend"
	"github.com/dmitrymomot/mailroom/pkg/mailer/smtp"
	pkgredis "github.com/dmitrymomot/mailroom/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.NewWithSentry(cfg.Sentry, handler.RequestIDExtractor()).
		With("app", cfg.AppName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool, migrations.FS, cfg.DB.MigrationsTable, log); err != nil {
		return err
	}

	redisClient, err := pkgredis.Open(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	templates := template.NewStore(pool)
	queueStore := queue.NewStore(pool)
	drainer := queue.NewDrainer(queueStore, sender,
		queue.WithBatchLimit(cfg.Queue.BatchLimit),
		queue.WithStaleAfter(cfg.Queue.StaleAfter),
		queue.WithLogger(log),
	)
	directory := notify.NewPGDirectory(pool)
	notifier := notify.NewNotifier(templates, directory, sender, cfg.SiteURL,
		notify.WithLogger(log))
	sweeper := notify.NewSweeper(notify.NewPGSweepStore(pool), templates, sender, cfg.SiteURL,
		notify.WithSweepLogger(log))

	statsCache := cache.NewRedis[handler.Stats](redisClient,
		cache.WithPrefix(cfg.AppName),
		cache.WithDefaultTTL(cfg.StatsCacheTTL),
	)

	api := handler.New(queueStore, drainer, templates, notifier, sweeper, statsCache,
		handler.Config{
			CronSecret:      cfg.Cron.Secret,
			UnseenThreshold: cfg.Queue.UnseenThreshold,
			StatsCacheTTL:   cfg.StatsCacheTTL,
		},
		handler.WithLogger(log),
		handler.WithHealthChecks(health.Checks{
			"postgres": db.Healthcheck(pool),
			"redis":    pkgredis.Healthcheck(redisClient),
		}),
	)

	sched := scheduler.New(scheduler.WithLogger(log))
	if err := registerJobs(sched, cfg, drainer, sweeper); err != nil {
		return err
	}
	sched.Start()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.Router(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "server listening", "addr", cfg.HTTP.Addr, "provider", cfg.MailProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error("scheduler shutdown failed", "error", err)
	}
	return nil
}

// newSender picks the delivery backend from MAIL_PROVIDER.
func newSender(cfg *config.Config) (mailer.Sender, error) {
	switch cfg.MailProvider {
	case config.ProviderResend:
		return resend.New(cfg.Resend), nil
	case config.ProviderSMTP:
		return smtp.New(cfg.SMTP), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidProvider, cfg.MailProvider)
	}
}

// registerJobs wires the recurring maintenance work: queue drains,
// unseen-message sweeps, and ledger pruning.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, drainer *queue.Drainer, sweeper *notify.Sweeper) error {
	if err := sched.Add("queue-drain", cfg.Cron.DrainSchedule, func(ctx context.Context) error {
		_, err := drainer.Drain(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := sched.Add("unseen-sweep", cfg.Cron.SweepSchedule, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx, cfg.Queue.UnseenThreshold)
		return err
	}); err != nil {
		return err
	}

	return sched.Add("ledger-prune", cfg.Cron.PruneSchedule, func(ctx context.Context) error {
		_, err := sweeper.PruneLedger(ctx, cfg.Queue.LedgerRetention)
		return err
	})
}
