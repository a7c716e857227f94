package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/sayflow/internal/auth"
	"github.com/nikhilbhutani/sayflow/internal/models"
	"github.com/nikhilbhutani/sayflow/internal/usage"
)

type StatsStore interface {
	Stats(ctx context.Context, userID uuid.UUID, r usage.Range) (*models.UsageStats, error)
}

type StatsHandler struct {
	store StatsStore
}

// NewStatsHandler accepts a nil store; requests then fail with 503.
func NewStatsHandler(store StatsStore) *StatsHandler {
	return &StatsHandler{store: store}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	rng, err := usage.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "usage storage unavailable")
		return
	}

	stats, err := h.store.Stats(r.Context(), user.ID, rng)
	if err != nil {
		slog.Error("failed to get stats", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to retrieve statistics")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
