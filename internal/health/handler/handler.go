// Package handler exposes health records and the batch trigger.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/health"
	"aegis/internal/health/service"
	"aegis/internal/platform/middleware"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/httputil"
)

// Service defines the health operations the transport exposes.
type Service interface {
	Get(ctx context.Context, ref id.EntityRef) (*health.Score, error)
	Compute(ctx context.Context, ref id.EntityRef) (*health.Score, error)
	RunIfDue(ctx context.Context) (service.Result, error)
}

// Handler wires health endpoints to the health service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a health handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts health endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	managers := middleware.RequireRole("manager", "admin")
	r.Route("/health-scores", func(r chi.Router) {
		// Recompute trigger. Any number of dashboards can hit this; the
		// batch gate turns the extras into skips.
		r.With(managers).Post("/recompute", h.HandleRecompute)
		r.Get("/{entityType}/{entityID}", h.HandleGet)
		r.With(managers).Post("/{entityType}/{entityID}/recompute", h.HandleComputeOne)
	})
}

// RecomputeResponse reports a batch trigger outcome.
type RecomputeResponse struct {
	Skipped  bool   `json:"skipped"`
	LastRun  string `json:"last_run,omitempty"`
	Entities int    `json:"entities"`
	Computed int    `json:"computed"`
}

// HandleRecompute handles POST /health-scores/recompute.
func (h *Handler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.RunIfDue(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := RecomputeResponse{
		Skipped:  result.Skipped,
		Entities: result.Entities,
		Computed: result.Computed,
	}
	if !result.LastRun.IsZero() {
		resp.LastRun = result.LastRun.UTC().Format(time.RFC3339)
	}
	status := http.StatusOK
	if result.Skipped {
		status = http.StatusAccepted
	}
	httputil.WriteJSON(w, status, resp)
}

// HandleGet handles GET /health-scores/{entityType}/{entityID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.entityRef(w, r)
	if !ok {
		return
	}
	score, err := h.service.Get(r.Context(), ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, score)
}

// HandleComputeOne handles POST /health-scores/{entityType}/{entityID}/recompute,
// an on-demand single-entity refresh outside the batch.
func (h *Handler) HandleComputeOne(w http.ResponseWriter, r *http.Request) {
	ref, ok := h.entityRef(w, r)
	if !ok {
		return
	}
	score, err := h.service.Compute(r.Context(), ref)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, score)
}

func (h *Handler) entityRef(w http.ResponseWriter, r *http.Request) (id.EntityRef, bool) {
	entityType := id.EntityType(chi.URLParam(r, "entityType"))
	if !entityType.IsValid() {
		httputil.WriteError(w, derrors.Newf(derrors.CodeInvalidInput, "unknown entity type %q", entityType))
		return id.EntityRef{}, false
	}
	entityID, err := id.ParseEntityID(chi.URLParam(r, "entityID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.EntityRef{}, false
	}
	return id.EntityRef{Type: entityType, ID: entityID}, true
}
