// Package handler wires the template endpoints to the checklist service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"aegis/internal/checklist"
	"aegis/internal/platform/middleware"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/httputil"
)

// Service defines the template operations the transport exposes.
type Service interface {
	Activate(ctx context.Context, tmpl *checklist.Template) error
	Get(ctx context.Context, templateID id.TemplateID) (*checklist.Template, error)
	ListActive(ctx context.Context, entityType id.EntityType) ([]*checklist.Template, error)
}

// Handler wires template endpoints to the checklist service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a checklist handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts template endpoints on the router. Activation is
// manager-only.
func (h *Handler) Register(r chi.Router) {
	r.Route("/templates", func(r chi.Router) {
		r.With(middleware.RequireRole("manager", "admin")).Post("/", h.HandleActivate)
		r.Get("/", h.HandleListActive)
		r.Get("/{templateID}", h.HandleGet)
	})
}

// HandleActivate handles POST /templates: validate and activate a template
// definition. A payload without an id gets one assigned.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tmpl, ok := httputil.Decode[checklist.Template](w, r, h.logger, ctx)
	if !ok {
		return
	}
	if tmpl.ID.IsNil() {
		tmpl.ID = id.TemplateID(uuid.New())
	}

	if err := h.service.Activate(ctx, &tmpl); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, tmpl)
}

// HandleGet handles GET /templates/{templateID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	templateID, err := id.ParseTemplateID(chi.URLParam(r, "templateID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	tmpl, err := h.service.Get(r.Context(), templateID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tmpl)
}

// HandleListActive handles GET /templates?entity_type=outlet.
func (h *Handler) HandleListActive(w http.ResponseWriter, r *http.Request) {
	entityType := id.EntityType(r.URL.Query().Get("entity_type"))
	templates, err := h.service.ListActive(r.Context(), entityType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, templates)
}
