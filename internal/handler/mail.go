package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mailroom/internal/notify"
	"github.com/dmitrymomot/mailroom/internal/queue"
	"github.com/dmitrymomot/mailroom/internal/template"
	"github.com/dmitrymomot/mailroom/pkg/cache"
)

const (
	recentQueueLimit = 100
	statsRecentLimit = 10
	statsCacheKey    = "mail:stats"
)

// recentQueue returns the latest queue rows by scheduled time.
func (h *Handler) recentQueue(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.Recent(r.Context(), recentQueueLimit)
	if err != nil {
		h.log.ErrorContext(r.Context(), "recent queue listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list queue")
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"queue": jobs})
}

// sendBulkRequest is the flexible-recipient send body.
type sendBulkRequest struct {
	RecipientType string            `json:"recipientType"`
	Recipient     string            `json:"recipient"`
	Role          string            `json:"role"`
	Template      string            `json:"template"`
	Variables     map[string]string `json:"variables"`
	Subject       string            `json:"subject"`
	HTML          string            `json:"html"`
	Text          string            `json:"text"`
	Markdown      string            `json:"markdown"`
	ScheduledAt   *time.Time        `json:"scheduledAt"`
}

// sendBulk enqueues one job per resolved recipient. Delivery happens on
// the next drain, or after scheduledAt when one is given.
func (h *Handler) sendBulk(w http.ResponseWriter, r *http.Request) {
	var req sendBulkRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	target := req.Recipient
	if notify.RecipientType(req.RecipientType) == notify.RecipientRole {
		target = req.Role
	}
	recipients, err := h.resolver.ResolveRecipients(r.Context(), notify.RecipientType(req.RecipientType), target)
	switch {
	case errors.Is(err, notify.ErrNoRecipients):
		respondError(w, http.StatusBadRequest, "No recipients found")
		return
	case errors.Is(err, notify.ErrUnknownRecipientType):
		respondError(w, http.StatusBadRequest, "Invalid recipient type")
		return
	case err != nil:
		h.log.ErrorContext(r.Context(), "recipient resolution failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to resolve recipients")
		return
	}

	body, errStatus, errMsg := h.buildContent(r.Context(), contentRequest{
		Template:  req.Template,
		Variables: req.Variables,
		Subject:   req.Subject,
		HTML:      req.HTML,
		Text:      req.Text,
		Markdown:  req.Markdown,
	})
	if errStatus != 0 {
		respondError(w, errStatus, errMsg)
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != nil {
		scheduledAt = *req.ScheduledAt
	}
	params := make([]queue.EnqueueParams, len(recipients))
	for i, recipient := range recipients {
		params[i] = queue.EnqueueParams{
			Recipient:   recipient,
			Subject:     body.subject,
			BodyHTML:    body.html,
			BodyText:    body.text,
			ScheduledAt: scheduledAt,
		}
	}
	count, err := h.queue.EnqueueBatch(r.Context(), params)
	if err != nil {
		h.log.ErrorContext(r.Context(), "bulk enqueue failed", "recipients", len(params), "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to queue emails")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"recipientCount": count,
		"scheduled":      scheduledAt.After(time.Now()),
	})
}

// content is the resolved subject and bodies of an outbound email.
type content struct {
	subject, html, text string
}

type contentRequest struct {
	Template  string
	Variables map[string]string
	Subject   string
	HTML      string
	Text      string
	Markdown  string
}

// buildContent resolves a send request into final bodies, via the
// stored template or the raw subject/html/text/markdown fields. A
// non-zero status signals a client or server error to respond with.
func (h *Handler) buildContent(ctx context.Context, req contentRequest) (content, int, string) {
	if req.Template != "" {
		tmpl, err := h.templates.Get(ctx, req.Template)
		if errors.Is(err, template.ErrNotFound) {
			return content{}, http.StatusNotFound, "Template not found"
		}
		if err != nil {
			h.log.ErrorContext(ctx, "template lookup failed", "template", req.Template, "error", err)
			return content{}, http.StatusInternalServerError, "Failed to load template"
		}
		rendered := template.Render(tmpl, req.Variables)
		return content{rendered.Subject, rendered.HTML, rendered.Text}, 0, ""
	}

	if req.Subject == "" {
		return content{}, http.StatusBadRequest, "Either template or subject is required"
	}

	body := content{subject: req.Subject, html: req.HTML, text: req.Text}
	if body.html == "" && req.Markdown != "" {
		converted, err := template.MarkdownToHTML(req.Markdown)
		if err != nil {
			return content{}, http.StatusBadRequest, "Invalid markdown body"
		}
		body.html = converted
		if body.text == "" {
			body.text = req.Markdown
		}
	}
	if body.html == "" && body.text != "" {
		body.html = template.TextToHTML(body.text)
	}
	if body.html == "" {
		return content{}, http.StatusBadRequest, "Email body is required"
	}
	return body, 0, ""
}

// stats serves aggregate queue counts plus the most recent rows, cached
// to keep dashboard polling off the database.
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	payload, err := cache.GetOrSet(r.Context(), h.statsCache, statsCacheKey,
		func(ctx context.Context) (Stats, time.Duration, error) {
			counts, err := h.queue.StatusCounts(ctx)
			if err != nil {
				return Stats{}, 0, err
			}
			recent, err := h.queue.Recent(ctx, statsRecentLimit)
			if err != nil {
				return Stats{}, 0, err
			}
			if recent == nil {
				recent = []queue.Job{}
			}
			return Stats{Counts: counts, Recent: recent}, h.cfg.StatsCacheTTL, nil
		})
	if err != nil {
		h.log.ErrorContext(r.Context(), "stats aggregation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"stats": payload})
}

// getTemplates returns one template by id or the full listing.
func (h *Handler) getTemplates(w http.ResponseWriter, r *http.Request) {
	if rawID := r.URL.Query().Get("id"); rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid template id")
			return
		}
		tmpl, err := h.templates.GetByID(r.Context(), id)
		if errors.Is(err, template.ErrNotFound) {
			respondError(w, http.StatusNotFound, "Template not found")
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to load template")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"template": tmpl})
		return
	}

	items, err := h.templates.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}
	if items == nil {
		items = []template.ListItem{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"templates": items})
}

// templateRequest is the template create/update body.
type templateRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Subject     string `json:"subject"`
	BodyHTML    string `json:"bodyHtml"`
	BodyText    string `json:"bodyText"`
}

// createTemplate creates or overwrites a template by name.
func (h *Handler) createTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Subject == "" {
		respondError(w, http.StatusBadRequest, "Subject is required")
		return
	}

	tmpl, err := h.templates.Upsert(r.Context(), template.UpsertParams{
		Name:        req.Name,
		Description: req.Description,
		Subject:     req.Subject,
		BodyHTML:    req.BodyHTML,
		BodyText:    req.BodyText,
	})
	if errors.Is(err, template.ErrInvalidName) {
		respondError(w, http.StatusBadRequest, "Template name is required")
		return
	}
	if err != nil {
		h.log.ErrorContext(r.Context(), "template upsert failed", "name", req.Name, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"template": tmpl})
}

// updateTemplate patches an existing template by id. Omitted fields
// keep their current values.
func (h *Handler) updateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid template id")
		return
	}

	current, err := h.templates.GetByID(r.Context(), id)
	if errors.Is(err, template.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Template not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load template")
		return
	}

	p := template.UpsertParams{
		Name:        current.Name,
		Description: current.Description,
		Subject:     current.Subject,
		BodyHTML:    current.BodyHTML,
		BodyText:    current.BodyText,
	}
	if req.Description != "" {
		p.Description = req.Description
	}
	if req.Subject != "" {
		p.Subject = req.Subject
	}
	if req.BodyHTML != "" {
		p.BodyHTML = req.BodyHTML
	}
	if req.BodyText != "" {
		p.BodyText = req.BodyText
	}

	tmpl, err := h.templates.Upsert(r.Context(), p)
	if err != nil {
		h.log.ErrorContext(r.Context(), "template update failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to save template")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"template": tmpl})
}

// deleteTemplate removes a template by id.
func (h *Handler) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid template id")
		return
	}
	switch err := h.templates.Delete(r.Context(), id); {
	case errors.Is(err, template.ErrNotFound):
		respondError(w, http.StatusNotFound, "Template not found")
	case err != nil:
		h.log.ErrorContext(r.Context(), "template delete failed", "id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to delete template")
	default:
		respondJSON(w, http.StatusOK, map[string]any{"message": "Template deleted"})
	}
}
