// Package config aggregates every env-tagged configuration struct the
// service uses into one tree, parsed once at startup.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dmitrymomot/mailroom/pkg/db"
	"github.com/dmitrymomot/mailroom/pkg/logger"
	"github.com/dmitrymomot/mailroom/pkg/mailer/resend"
	"github.com/dmitrymomot/mailroom/pkg/mailer/smtp"
	"github.com/dmitrymomot/mailroom/pkg/redis"
)

// Mail providers selectable via MAIL_PROVIDER.
const (
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
)

// ErrInvalidProvider indicates MAIL_PROVIDER names an unknown backend.
var ErrInvalidProvider = errors.New("config: invalid mail provider")

// HTTP configures the API server.
type HTTP struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Cron configures the background schedules and trigger auth.
type Cron struct {
	// Secret guards the processing endpoints. Empty disables the check
	// on the read-only GET trigger but still rejects mutating calls.
	Secret string `env:"CRON_SECRET"`

	DrainSchedule string `env:"CRON_DRAIN_SCHEDULE" envDefault:"* * * * *"`
	SweepSchedule string `env:"CRON_SWEEP_SCHEDULE" envDefault:"0 * * * *"`
	PruneSchedule string `env:"CRON_PRUNE_SCHEDULE" envDefault:"30 3 * * *"`
}

// Queue configures the drainer and the unseen sweep.
type Queue struct {
	BatchLimit      int           `env:"QUEUE_BATCH_LIMIT" envDefault:"50"`
	StaleAfter      time.Duration `env:"QUEUE_STALE_AFTER" envDefault:"10m"`
	UnseenThreshold time.Duration `env:"UNSEEN_THRESHOLD" envDefault:"12h"`
	LedgerRetention time.Duration `env:"UNSEEN_LEDGER_RETENTION" envDefault:"720h"`
}

// Config is the full service configuration.
type Config struct {
	AppName  string `env:"APP_NAME" envDefault:"mailroom"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// SiteURL is the base for deep links embedded in emails.
	SiteURL string `env:"SITE_URL" envDefault:"http://localhost:3000"`

	// MailProvider selects the delivery backend: resend or smtp.
	MailProvider string `env:"MAIL_PROVIDER" envDefault:"resend"`

	// StatsCacheTTL bounds how stale the queue stats endpoint may be.
	StatsCacheTTL time.Duration `env:"STATS_CACHE_TTL" envDefault:"30s"`

	HTTP   HTTP
	Cron   Cron
	Queue  Queue
	DB     db.Config
	Redis  redis.Config
	Sentry logger.SentryConfig
	Resend resend.Config
	SMTP   smtp.Config
}

// Load parses the full configuration from the environment.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if cfg.MailProvider != ProviderResend && cfg.MailProvider != ProviderSMTP {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, cfg.MailProvider)
	}
	return &cfg, nil
}
