package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rtvpioli/assistant-engine/internal/observability"
	"github.com/rtvpioli/assistant-engine/internal/storage"
)

const (
	defaultHandoffLimit = 50
	maxHandoffLimit     = 500
)

// SuggestionLister lists open improvement suggestions.
type SuggestionLister interface {
	ListOpen(ctx context.Context) ([]*storage.Suggestion, error)
}

// HandoffLister lists recent operator handoffs.
type HandoffLister interface {
	ListRecent(ctx context.Context, n int) ([]*storage.Handoff, error)
}

// UsageReader aggregates AI provider usage.
type UsageReader interface {
	TotalsSince(ctx context.Context, since time.Time) (*storage.UsageTotals, error)
}

// FAQReviewStore exposes the proposed-FAQ review queue.
type FAQReviewStore interface {
	ListPending(ctx context.Context) ([]*storage.FAQ, error)
	Approve(ctx context.Context, id uuid.UUID) error
}

// AdminHandler handles the token-protected back-office endpoints.
type AdminHandler struct {
	logger      *observability.Logger
	suggestions SuggestionLister
	handoffs    HandoffLister
	usage       UsageReader
	faqs        FAQReviewStore
	now         func() time.Time
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(logger *observability.Logger, suggestions SuggestionLister,
	handoffs HandoffLister, usage UsageReader, faqs FAQReviewStore) *AdminHandler {
	return &AdminHandler{
		logger:      logger,
		suggestions: suggestions,
		handoffs:    handoffs,
		usage:       usage,
		faqs:        faqs,
		now:         time.Now,
	}
}

// Suggestions handles GET /admin/suggestions.
func (h *AdminHandler) Suggestions(w http.ResponseWriter, r *http.Request) {
	list, err := h.suggestions.ListOpen(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list suggestions")
		writeError(w, http.StatusInternalServerError, "could not list suggestions", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions": list,
		"count":       len(list),
	})
}

// Handoffs handles GET /admin/handoffs.
func (h *AdminHandler) Handoffs(w http.ResponseWriter, r *http.Request) {
	limit := defaultHandoffLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxHandoffLimit {
		limit = maxHandoffLimit
	}

	list, err := h.handoffs.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list handoffs")
		writeError(w, http.StatusInternalServerError, "could not list handoffs", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"handoffs": list,
		"count":    len(list),
	})
}

// Usage handles GET /admin/usage. The window defaults to the current day
// and widens with the days query parameter.
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	days := 1
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	now := h.now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	since := midnight.AddDate(0, 0, -(days - 1))

	totals, err := h.usage.TotalsSince(r.Context(), since)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to aggregate usage")
		writeError(w, http.StatusInternalServerError, "could not aggregate usage", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"since":  since.Format(time.RFC3339),
		"totals": totals,
	})
}

// PendingFAQs handles GET /admin/faqs/pending.
func (h *AdminHandler) PendingFAQs(w http.ResponseWriter, r *http.Request) {
	list, err := h.faqs.ListPending(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list pending FAQs")
		writeError(w, http.StatusInternalServerError, "could not list pending faqs", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"faqs":  list,
		"count": len(list),
	})
}

// ApproveFAQ handles POST /admin/faqs/{id}/approve.
func (h *AdminHandler) ApproveFAQ(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid faq id", "")
		return
	}

	if err := h.faqs.Approve(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "faq not found", "")
			return
		}
		h.logger.Error().Err(err).Str("faq_id", id.String()).Msg("Failed to approve FAQ")
		writeError(w, http.StatusInternalServerError, "could not approve faq", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"approved": id.String(),
	})
}
