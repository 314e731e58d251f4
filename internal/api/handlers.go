package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prudhvinik1/boardsync/internal/repositories"
)

const maxActivityLimit = 500

var errActivityDisabled = errors.New("activity log disabled")

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

// PingCheck adapts anything with a Ping(ctx) error method, such as a pgxpool.
func PingCheck(name string, p interface{ Ping(context.Context) error }) Check {
	return Check{Name: name, Fn: p.Ping}
}

// Handler serves the HTTP side of the service: health, metrics and the
// read-only board endpoints.
type Handler struct {
	presenceRepo repositories.PresenceRepository
	activityRepo repositories.ActivityRepository
	checks       []Check
	startTime    time.Time
}

// NewHandler builds the handler. activityRepo may be nil when the activity log
// is disabled.
func NewHandler(presenceRepo repositories.PresenceRepository, activityRepo repositories.ActivityRepository, checks ...Check) *Handler {
	return &Handler{
		presenceRepo: presenceRepo,
		activityRepo: activityRepo,
		checks:       checks,
		startTime:    time.Now(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	// Observability endpoints
	r.Get("/health", h.handleLiveness)
	r.Get("/ready", h.handleReadiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/boards/{boardId}", func(r chi.Router) {
		r.Get("/presence", h.handlePresence)
		r.Get("/activities", h.handleActivities)
	})
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	for _, check := range h.checks {
		if err := check.Fn(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":       "unhealthy",
				"failed_check": check.Name,
				"error":        err.Error(),
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *Handler) handlePresence(w http.ResponseWriter, r *http.Request) {
	boardID := chi.URLParam(r, "boardId")

	presences, err := h.presenceRepo.ListBoardPresence(r.Context(), boardID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"boardId": boardID,
		"members": presences,
	})
}

func (h *Handler) handleActivities(w http.ResponseWriter, r *http.Request) {
	if h.activityRepo == nil {
		writeError(w, errActivityDisabled)
		return
	}

	limit := repositories.DefaultActivityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxActivityLimit)
	}

	activities, err := h.activityRepo.ListByBoard(r.Context(), chi.URLParam(r, "boardId"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, activities)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound), errors.Is(err, errActivityDisabled):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
