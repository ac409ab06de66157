package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dmitrymomot/mailroom/internal/queue"
	"github.com/dmitrymomot/mailroom/internal/template"
)

const (
	defaultQueuePageSize = 50
	maxQueuePageSize     = 200
)

// processStatus returns a queue snapshot without processing anything.
func (h *Handler) processStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.queue.StatusCounts(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "queue snapshot failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to read queue status")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"message": fmt.Sprintf("%d emails pending", counts.Pending),
	})
}

// processQueue drains due pending jobs.
func (h *Handler) processQueue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.drainer.Drain(r.Context())
	if err != nil {
		h.log.ErrorContext(r.Context(), "queue drain failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to process email queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":    "Email queue processed",
		"processed":  summary.Processed,
		"successful": summary.Successful,
		"failed":     summary.Failed,
	})
}

// listQueue returns a filtered, paginated queue listing.
func (h *Handler) listQueue(w http.ResponseWriter, r *http.Request) {
	var status queue.Status
	if s := r.URL.Query().Get("status"); s != "" {
		status = queue.Status(s)
		if !status.Valid() {
			respondError(w, http.StatusBadRequest, "Invalid status filter")
			return
		}
	}

	limit := queryInt(r, "limit", defaultQueuePageSize)
	if limit < 1 || limit > maxQueuePageSize {
		limit = defaultQueuePageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	jobs, total, err := h.queue.List(r.Context(), status, limit, offset)
	if err != nil {
		h.log.ErrorContext(r.Context(), "queue listing failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to list email queue")
		return
	}
	if jobs == nil {
		jobs = []queue.Job{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"emails": jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// sendOneRequest is the one-off send body. Either a template name with
// variables, or a raw subject plus at least one body form.
type sendOneRequest struct {
	To        string            `json:"to"`
	Template  string            `json:"template"`
	Variables map[string]string `json:"variables"`
	Subject   string            `json:"subject"`
	HTML      string            `json:"html"`
	Text      string            `json:"text"`
	Markdown  string            `json:"markdown"`
}

// sendOne sends an email immediately and records a terminal queue row.
func (h *Handler) sendOne(w http.ResponseWriter, r *http.Request) {
	var req sendOneRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.To == "" {
		respondError(w, http.StatusBadRequest, "Recipient is required")
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

	job, err := h.queue.Enqueue(r.Context(), queue.EnqueueParams{
		Recipient: req.To,
		Subject:   body.subject,
		BodyHTML:  body.html,
		BodyText:  body.text,
	})
	if err != nil {
		h.log.ErrorContext(r.Context(), "enqueue failed", "recipient", req.To, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to record email")
		return
	}

	if err := h.drainer.SendNow(r.Context(), job); err != nil {
		respondError(w, http.StatusBadGateway, "Failed to send email")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Email sent",
		"emailId": job.ID,
	})
}

// getTemplatesLegacy serves the template lookup that predates the
// /api/mail/templates CRUD. Kept for callers of GET /api/email/send.
func (h *Handler) getTemplatesLegacy(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("template"); name != "" {
		tmpl, err := h.templates.Get(r.Context(), name)
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

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, key string) float64 {
	f, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	if err != nil {
		return 0
	}
	return f
}
