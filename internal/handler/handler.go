package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dmitrymomot/mailroom/internal/notify"
	"github.com/dmitrymomot/mailroom/internal/queue"
	"github.com/dmitrymomot/mailroom/internal/template"
	"github.com/dmitrymomot/mailroom/pkg/cache"
	"github.com/dmitrymomot/mailroom/pkg/health"
	"github.com/dmitrymomot/mailroom/pkg/logger"
)

// queueStore is the queue surface the API needs.
type queueStore interface {
	Enqueue(ctx context.Context, p queue.EnqueueParams) (*queue.Job, error)
	EnqueueBatch(ctx context.Context, params []queue.EnqueueParams) (int, error)
	List(ctx context.Context, status queue.Status, limit, offset int) ([]queue.Job, int, error)
	Recent(ctx context.Context, limit int) ([]queue.Job, error)
	StatusCounts(ctx context.Context) (queue.StatusCounts, error)
}

// drainer triggers delivery.
type drainer interface {
	Drain(ctx context.Context) (queue.Summary, error)
	SendNow(ctx context.Context, job *queue.Job) error
}

// templateStore is the template CRUD surface.
type templateStore interface {
	Get(ctx context.Context, name string) (*template.Template, error)
	GetByID(ctx context.Context, id uuid.UUID) (*template.Template, error)
	List(ctx context.Context) ([]template.ListItem, error)
	Upsert(ctx context.Context, p template.UpsertParams) (*template.Template, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// recipientResolver expands the bulk send path's recipient selector.
type recipientResolver interface {
	ResolveRecipients(ctx context.Context, typ notify.RecipientType, target string) ([]string, error)
}

// sweeper runs the unseen-message digest sweep.
type sweeper interface {
	Sweep(ctx context.Context, threshold time.Duration) (notify.SweepResult, error)
	Preview(ctx context.Context, threshold time.Duration) (notify.PreviewResult, error)
}

// Stats is the cached payload of the stats endpoint.
type Stats struct {
	Counts queue.StatusCounts `json:"counts"`
	Recent []queue.Job        `json:"recentEmails"`
}

// Config carries the request-handling knobs.
type Config struct {
	// CronSecret guards the processing and sweep triggers.
	CronSecret string
	// UnseenThreshold is the default sweep cutoff when the request
	// does not override it.
	UnseenThreshold time.Duration
	// StatsCacheTTL bounds staleness of the stats endpoint.
	StatsCacheTTL time.Duration
}

// Handler wires the HTTP routes to the domain services.
type Handler struct {
	queue      queueStore
	drainer    drainer
	templates  templateStore
	resolver   recipientResolver
	sweeper    sweeper
	statsCache cache.Cache[Stats]
	checks     health.Checks
	log        *slog.Logger
	cfg        Config
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler logger. Default: discard.
func WithLogger(log *slog.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

// WithHealthChecks registers readiness checks for /readyz.
func WithHealthChecks(checks health.Checks) Option {
	return func(h *Handler) {
		h.checks = checks
	}
}

// New creates a Handler.
func New(
	qs queueStore,
	dr drainer,
	ts templateStore,
	rr recipientResolver,
	sw sweeper,
	statsCache cache.Cache[Stats],
	cfg Config,
	opts ...Option,
) *Handler {
	if cfg.UnseenThreshold <= 0 {
		cfg.UnseenThreshold = notify.DefaultUnseenThreshold
	}
	if cfg.StatsCacheTTL <= 0 {
		cfg.StatsCacheTTL = 30 * time.Second
	}
	h := &Handler{
		queue:      qs,
		drainer:    dr,
		templates:  ts,
		resolver:   rr,
		sweeper:    sw,
		statsCache: statsCache,
		log:        logger.NewNope(),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router assembles the chi route tree.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recover(h.log))

	r.Get("/healthz", health.LivenessHandler())
	r.Get("/readyz", health.ReadinessHandler(h.checks))

	r.Route("/api/email", func(r chi.Router) {
		r.With(OptionalBearer(h.cfg.CronSecret)).Get("/process", h.processStatus)
		r.With(RequireBearer(h.cfg.CronSecret)).Post("/process", h.processQueue)
		r.Get("/queue", h.listQueue)
		r.Post("/send", h.sendOne)
		r.Get("/send", h.getTemplatesLegacy)
	})

	r.Route("/api/mail", func(r chi.Router) {
		r.Get("/queue", h.recentQueue)
		r.Post("/send", h.sendBulk)
		r.Get("/stats", h.stats)
		r.Route("/templates", func(r chi.Router) {
			r.Get("/", h.getTemplates)
			r.Post("/", h.createTemplate)
			r.Patch("/", h.updateTemplate)
			r.Delete("/", h.deleteTemplate)
		})
	})

	r.Route("/api/chat", func(r chi.Router) {
		r.With(RequireBearer(h.cfg.CronSecret)).Post("/notify-unseen", h.sweepUnseen)
		r.Get("/notify-unseen", h.previewUnseen)
	})

	return r
}
