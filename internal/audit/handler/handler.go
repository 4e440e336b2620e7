// Package handler wires the audit lifecycle endpoints to the audit service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"aegis/internal/audit"
	"aegis/internal/audit/service"
	"aegis/internal/finding"
	"aegis/internal/platform/middleware"
	"aegis/internal/session"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/httputil"
	"aegis/pkg/requestcontext"
)

// Service defines the audit operations the transport exposes.
type Service interface {
	Schedule(ctx context.Context, ref id.EntityRef, templateID id.TemplateID, auditorID id.AuditorID, scheduledFor time.Time) (*audit.Audit, error)
	Start(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	Get(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	NewSession(ctx context.Context, auditID id.AuditID) (*session.Session, error)
	LoadSession(ctx context.Context, auditID id.AuditID) (*session.Session, error)
	SaveDraft(ctx context.Context, auditID id.AuditID, sess *session.Session) error
	Submit(ctx context.Context, auditID id.AuditID, sess *session.Session) (*service.SubmitResult, error)
	RequestVerification(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	Approve(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	Reject(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	Cancel(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	MarkOverdue(ctx context.Context) (int, error)
	Findings(ctx context.Context, auditID id.AuditID) ([]finding.Finding, error)
	CAPAs(ctx context.Context, auditID id.AuditID) ([]finding.CAPA, error)
	TransitionCAPA(ctx context.Context, capaID id.CAPAID, next finding.CAPAStatus) (*finding.CAPA, error)
	AssignCAPA(ctx context.Context, capaID id.CAPAID, owner id.UserID) (*finding.CAPA, error)
}

// Handler wires audit endpoints to the audit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an audit handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts audit endpoints on the router. Verification verbs and the
// overdue sweep are manager-only; the rest is open to any authenticated
// auditor.
func (h *Handler) Register(r chi.Router) {
	managers := middleware.RequireRole("manager", "admin")
	r.Route("/audits", func(r chi.Router) {
		r.Post("/", h.HandleSchedule)
		r.With(managers).Post("/overdue-sweep", h.HandleMarkOverdue)
		r.Route("/{auditID}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.Post("/start", h.HandleStart)
			r.Get("/draft", h.HandleGetDraft)
			r.Put("/draft", h.HandleSaveDraft)
			r.Post("/submit", h.HandleSubmit)
			r.Post("/request-verification", h.HandleRequestVerification)
			r.With(managers).Post("/approve", h.HandleApprove)
			r.With(managers).Post("/reject", h.HandleReject)
			r.Post("/cancel", h.HandleCancel)
			r.Get("/findings", h.HandleFindings)
			r.Get("/capas", h.HandleCAPAs)
		})
	})
	r.Route("/capas/{capaID}", func(r chi.Router) {
		r.Post("/transition", h.HandleTransitionCAPA)
		r.Post("/assign", h.HandleAssignCAPA)
	})
}

// HandleSchedule handles POST /audits.
func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.Decode[ScheduleRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}
	ref, templateID, auditorID, err := req.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	a, err := h.service.Schedule(ctx, ref, templateID, auditorID, req.ScheduledFor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, a)
}

// HandleGet handles GET /audits/{auditID}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	h.withAudit(w, r, h.service.Get)
}

// HandleStart handles POST /audits/{auditID}/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.withAudit(w, r, h.service.Start)
}

// HandleGetDraft handles GET /audits/{auditID}/draft.
func (h *Handler) HandleGetDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	sess, err := h.service.LoadSession(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(sess))
}

// HandleSaveDraft handles PUT /audits/{auditID}/draft. The payload replaces
// the stored draft whole.
func (h *Handler) HandleSaveDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ResponsesRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	sess, err := h.service.NewSession(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := req.Apply(sess); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.SaveDraft(ctx, auditID, sess); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSession(sess))
}

// HandleSubmit handles POST /audits/{auditID}/submit. A body with responses
// replaces the draft before submission; an empty response set submits the
// stored draft as-is.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.Decode[ResponsesRequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	var (
		sess *session.Session
		err  error
	)
	if len(req.Responses) > 0 {
		sess, err = h.service.NewSession(ctx, auditID)
		if err == nil {
			err = req.Apply(sess)
		}
	} else {
		sess, err = h.service.LoadSession(ctx, auditID)
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.Submit(ctx, auditID, sess)
	if err != nil {
		h.logger.WarnContext(ctx, "audit submission rejected",
			"request_id", requestID,
			"audit_id", auditID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromSubmitResult(result))
}

// HandleRequestVerification handles POST /audits/{auditID}/request-verification.
func (h *Handler) HandleRequestVerification(w http.ResponseWriter, r *http.Request) {
	h.withAudit(w, r, h.service.RequestVerification)
}

// HandleApprove handles POST /audits/{auditID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.withAudit(w, r, h.service.Approve)
}

// HandleReject handles POST /audits/{auditID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.withAudit(w, r, h.service.Reject)
}

// HandleCancel handles POST /audits/{auditID}/cancel.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	h.withAudit(w, r, h.service.Cancel)
}

// HandleMarkOverdue handles POST /audits/overdue-sweep.
func (h *Handler) HandleMarkOverdue(w http.ResponseWriter, r *http.Request) {
	marked, err := h.service.MarkOverdue(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MarkOverdueResponse{Marked: marked})
}

// HandleFindings handles GET /audits/{auditID}/findings.
func (h *Handler) HandleFindings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	findings, err := h.service.Findings(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, findings)
}

// HandleCAPAs handles GET /audits/{auditID}/capas.
func (h *Handler) HandleCAPAs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	capas, err := h.service.CAPAs(ctx, auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, capas)
}

// HandleTransitionCAPA handles POST /capas/{capaID}/transition.
func (h *Handler) HandleTransitionCAPA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capaID, err := id.ParseCAPAID(chi.URLParam(r, "capaID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[TransitionCAPARequest](w, r, h.logger, ctx)
	if !ok {
		return
	}

	c, err := h.service.TransitionCAPA(ctx, capaID, finding.CAPAStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

// HandleAssignCAPA handles POST /capas/{capaID}/assign.
func (h *Handler) HandleAssignCAPA(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	capaID, err := id.ParseCAPAID(chi.URLParam(r, "capaID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.Decode[AssignCAPARequest](w, r, h.logger, ctx)
	if !ok {
		return
	}
	owner, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	c, err := h.service.AssignCAPA(ctx, capaID, owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) auditID(w http.ResponseWriter, r *http.Request) (id.AuditID, bool) {
	auditID, err := id.ParseAuditID(chi.URLParam(r, "auditID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.AuditID{}, false
	}
	return auditID, true
}

func (h *Handler) withAudit(w http.ResponseWriter, r *http.Request, op func(context.Context, id.AuditID) (*audit.Audit, error)) {
	auditID, ok := h.auditID(w, r)
	if !ok {
		return
	}
	a, err := op(r.Context(), auditID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, a)
}
