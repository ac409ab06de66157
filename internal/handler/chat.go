package handler

import (
	"net/http"
	"time"
)

// sweepRequest optionally overrides the staleness cutoff.
type sweepRequest struct {
	Hours float64 `json:"hours"`
}

// sweepUnseen runs the unseen-message digest sweep.
func (h *Handler) sweepUnseen(w http.ResponseWriter, r *http.Request) {
	threshold := h.cfg.UnseenThreshold
	var req sweepRequest
	// Body is optional; a bad one is ignored rather than rejected.
	if err := decodeJSON(r, &req); err == nil && req.Hours > 0 {
		threshold = time.Duration(req.Hours * float64(time.Hour))
	}

	result, err := h.sweeper.Sweep(r.Context(), threshold)
	if err != nil {
		h.log.ErrorContext(r.Context(), "unseen sweep failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to process unseen notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message":            "Unseen message sweep completed",
		"notifications_sent": result.NotificationsSent,
		"users_notified":     result.UsersNotified,
	})
}

// previewUnseen reports what a sweep would send, without sending.
func (h *Handler) previewUnseen(w http.ResponseWriter, r *http.Request) {
	threshold := h.cfg.UnseenThreshold
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if hours := queryFloat(r, "hours"); hours > 0 {
			threshold = time.Duration(hours * float64(time.Hour))
		} else {
			respondError(w, http.StatusBadRequest, "Invalid hours value")
			return
		}
	}

	preview, err := h.sweeper.Preview(r.Context(), threshold)
	if err != nil {
		h.log.ErrorContext(r.Context(), "unseen preview failed", "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to preview unseen notifications")
		return
	}
	respondJSON(w, http.StatusOK, preview)
}
