// Package service orchestrates the audit lifecycle: scheduling, draft
// persistence, the submission pipeline (gate, score, findings, CAPAs, one
// commit), and verification. Scoring itself stays pure; this package owns
// every side effect around it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"aegis/internal/audit"
	auditmetrics "aegis/internal/audit/metrics"
	"aegis/internal/checklist"
	"aegis/internal/finding"
	"aegis/internal/notify"
	"aegis/internal/scoring"
	"aegis/internal/session"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// Store is the audit persistence port.
type Store interface {
	CreateAudit(ctx context.Context, a *audit.Audit) error
	GetAudit(ctx context.Context, auditID id.AuditID) (*audit.Audit, error)
	UpdateAudit(ctx context.Context, a *audit.Audit) error
	ListCompletedByEntity(ctx context.Context, ref id.EntityRef) ([]*audit.Audit, error)
	ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*audit.Audit, error)
	SaveDraft(ctx context.Context, auditID id.AuditID, entries map[id.ItemID]session.Entry) error
	GetDraft(ctx context.Context, auditID id.AuditID) (map[id.ItemID]session.Entry, error)
	CommitSubmission(ctx context.Context, a *audit.Audit, findings []finding.Finding, capas []finding.CAPA) error
	ListFindings(ctx context.Context, auditID id.AuditID) ([]finding.Finding, error)
	GetCAPA(ctx context.Context, capaID id.CAPAID) (*finding.CAPA, error)
	UpdateCAPA(ctx context.Context, c *finding.CAPA) error
	ListCAPAsByAudit(ctx context.Context, auditID id.AuditID) ([]finding.CAPA, error)
	CountOpenCAPAsByEntity(ctx context.Context, ref id.EntityRef) (int, error)
}

// TemplateSource supplies validated, activated templates by id. The service
// never mutates or persists templates.
type TemplateSource interface {
	Get(ctx context.Context, templateID id.TemplateID) (*checklist.Template, error)
}

type Service struct {
	store     Store
	templates TemplateSource
	notifier  notify.Notifier
	metrics   *auditmetrics.Metrics
	logger    *slog.Logger
	duePolicy finding.DuePolicy
	router    finding.Router
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithMetrics(m *auditmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithDuePolicy(p finding.DuePolicy) Option {
	return func(s *Service) { s.duePolicy = p }
}

func WithRouter(r finding.Router) Option {
	return func(s *Service) { s.router = r }
}

func New(store Store, templates TemplateSource, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	if templates == nil {
		return nil, fmt.Errorf("template source is required")
	}
	svc := &Service{
		store:     store,
		templates: templates,
		duePolicy: finding.DefaultDuePolicy(),
		tracer:    otel.Tracer("aegis/audit"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// Schedule creates an audit instance in scheduled state.
func (s *Service) Schedule(ctx context.Context, ref id.EntityRef, templateID id.TemplateID, auditorID id.AuditorID, scheduledFor time.Time) (*audit.Audit, error) {
	tmpl, err := s.templates.Get(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tmpl.EntityType != ref.Type {
		return nil, derrors.Newf(derrors.CodeInvalidInput,
			"template %s targets %s, audit targets %s", tmpl.Code, tmpl.EntityType, ref.Type)
	}

	a, err := audit.NewAudit(ref.Type, ref.ID, templateID, auditorID, scheduledFor, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAudit(ctx, a); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to create audit")
	}

	s.logger.InfoContext(ctx, "audit scheduled",
		"audit_code", a.Code,
		"entity_type", ref.Type,
		"entity_id", ref.ID,
		"scheduled_for", scheduledFor,
	)
	return a, nil
}

// Start moves a scheduled audit to in_progress and stamps started_at.
func (s *Service) Start(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if err := a.Transition(audit.StatusInProgress, now); err != nil {
		return nil, err
	}
	a.StartedAt = &now
	if err := s.store.UpdateAudit(ctx, a); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to start audit")
	}
	return a, nil
}

// SaveDraft persists the session verbatim; status stays in_progress. No
// gate, no scoring.
func (s *Service) SaveDraft(ctx context.Context, auditID id.AuditID, sess *session.Session) error {
	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return err
	}
	if a.Status != audit.StatusInProgress {
		return derrors.Newf(derrors.CodeInvalidState, "audit %s is %s, drafts need in_progress", a.Code, a.Status)
	}
	if err := s.store.SaveDraft(ctx, auditID, sess.Snapshot()); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to save draft")
	}
	return nil
}

// NewSession builds an empty response session over the audit's template,
// for callers replacing the whole response set rather than resuming a draft.
func (s *Service) NewSession(ctx context.Context, auditID id.AuditID) (*session.Session, error) {
	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.Get(ctx, a.TemplateID)
	if err != nil {
		return nil, err
	}
	return session.New(tmpl), nil
}

// LoadSession rebuilds the response session from the stored draft, or an
// empty one when no draft exists yet.
func (s *Service) LoadSession(ctx context.Context, auditID id.AuditID) (*session.Session, error) {
	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	tmpl, err := s.templates.Get(ctx, a.TemplateID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.GetDraft(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return session.New(tmpl), nil
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to load draft")
	}
	return session.Restore(tmpl, entries), nil
}

// SubmitResult is what Submit hands back for display.
type SubmitResult struct {
	Audit    *audit.Audit
	Score    scoring.Result
	Findings []finding.Finding
	CAPAs    []finding.CAPA
}

// Submit runs the gate and the scoring engine, derives findings and CAPAs,
// and commits the whole result set atomically. An IncompleteError leaves all
// persisted state untouched.
func (s *Service) Submit(ctx context.Context, auditID id.AuditID, sess *session.Session) (*SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "audit.Submit",
		trace.WithAttributes(attribute.String("audit.id", auditID.String())))
	defer span.End()

	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if a.Status != audit.StatusInProgress {
		return nil, derrors.Newf(derrors.CodeInvalidState, "audit %s is %s, submission needs in_progress", a.Code, a.Status)
	}
	tmpl, err := s.templates.Get(ctx, a.TemplateID)
	if err != nil {
		return nil, err
	}

	if err := scoring.CheckSubmittable(tmpl, sess); err != nil {
		if s.metrics != nil {
			s.metrics.IncrementIncomplete()
		}
		return nil, derrors.Wrap(err, derrors.CodeIncomplete, "submission incomplete")
	}

	now := requestcontext.Now(ctx)
	result := scoring.Score(tmpl, sess)
	findings := finding.Generate(tmpl, sess, result, a.ID, now)
	capas := finding.GenerateCAPAs(findings, s.duePolicy, s.router, now)

	if err := a.Transition(audit.StatusSubmitted, now); err != nil {
		return nil, err
	}
	a.CompletedAt = &now
	a.Overall = result.Overall
	a.Pass = result.Pass
	a.CriticalFail = result.CriticalFail

	if err := s.store.CommitSubmission(ctx, a, findings, capas); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, derrors.New(derrors.CodeInvalidState, "audit changed state during submission")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to commit submission")
	}

	if s.metrics != nil {
		s.metrics.IncrementSubmitted()
		s.metrics.AddFindings(len(findings))
	}
	s.logger.InfoContext(ctx, "audit submitted",
		"audit_code", a.Code,
		"overall", result.Overall,
		"pass", result.Pass,
		"critical_fail", result.CriticalFail,
		"findings", len(findings),
	)

	if result.CriticalFail {
		if s.metrics != nil {
			s.metrics.IncrementCritical()
		}
		s.emit(ctx, notify.Event{
			Kind:       notify.KindCriticalFail,
			Timestamp:  now,
			AuditID:    a.ID,
			AuditCode:  a.Code,
			EntityType: a.EntityType,
			EntityID:   a.EntityID,
			Detail:     fmt.Sprintf("overall score %.1f", result.Overall),
		})
	}

	return &SubmitResult{Audit: a, Score: result, Findings: findings, CAPAs: capas}, nil
}

// RequestVerification moves a submitted audit into pending_verification.
func (s *Service) RequestVerification(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	return s.transition(ctx, auditID, audit.StatusPendingVerification)
}

// Approve finalizes an audit. It is blocked while any of the audit's CAPAs
// is not closed and unblocks as soon as every CAPA reaches closed.
func (s *Service) Approve(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	capas, err := s.store.ListCAPAsByAudit(ctx, auditID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list capas")
	}
	var open []id.CAPAID
	for _, c := range capas {
		if c.Status != finding.CAPAClosed {
			open = append(open, c.ID)
		}
	}
	if len(open) > 0 {
		if s.metrics != nil {
			s.metrics.IncrementBlocked()
		}
		return nil, derrors.Wrap(
			&audit.CAPAsNotClosedError{AuditID: auditID, Open: open},
			derrors.CodeConflict, "audit has unclosed capas")
	}

	now := requestcontext.Now(ctx)
	if err := a.Transition(audit.StatusApproved, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAudit(ctx, a); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to approve audit")
	}

	s.emit(ctx, notify.Event{
		Kind:       notify.KindAuditApproved,
		Timestamp:  now,
		AuditID:    a.ID,
		AuditCode:  a.Code,
		EntityType: a.EntityType,
		EntityID:   a.EntityID,
	})
	return a, nil
}

// Reject sends a pending audit back as rejected.
func (s *Service) Reject(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	return s.transition(ctx, auditID, audit.StatusRejected)
}

// Cancel terminates a not-yet-submitted audit.
func (s *Service) Cancel(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	return s.transition(ctx, auditID, audit.StatusCancelled)
}

// MarkOverdue sweeps scheduled audits whose date has passed with no start.
// Returns how many were marked.
func (s *Service) MarkOverdue(ctx context.Context) (int, error) {
	now := requestcontext.Now(ctx)
	stale, err := s.store.ListScheduledBefore(ctx, now)
	if err != nil {
		return 0, derrors.Wrap(err, derrors.CodeInternal, "failed to list scheduled audits")
	}
	marked := 0
	for _, a := range stale {
		if err := a.Transition(audit.StatusOverdue, now); err != nil {
			continue
		}
		if err := s.store.UpdateAudit(ctx, a); err != nil {
			s.logger.WarnContext(ctx, "overdue sweep update failed", "audit_code", a.Code, "error", err)
			continue
		}
		marked++
	}
	if marked > 0 {
		s.logger.InfoContext(ctx, "overdue sweep", "marked", marked)
	}
	return marked, nil
}

// Get returns an audit by id.
func (s *Service) Get(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	return s.getAudit(ctx, auditID)
}

// Findings returns the findings recorded at submission.
func (s *Service) Findings(ctx context.Context, auditID id.AuditID) ([]finding.Finding, error) {
	findings, err := s.store.ListFindings(ctx, auditID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list findings")
	}
	return findings, nil
}

// CAPAs returns the corrective actions recorded at submission.
func (s *Service) CAPAs(ctx context.Context, auditID id.AuditID) ([]finding.CAPA, error) {
	capas, err := s.store.ListCAPAsByAudit(ctx, auditID)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list capas")
	}
	return capas, nil
}

// TransitionCAPA moves a CAPA along its lifecycle. Rejection at verification
// is reported to the notification dispatcher.
func (s *Service) TransitionCAPA(ctx context.Context, capaID id.CAPAID, next finding.CAPAStatus) (*finding.CAPA, error) {
	c, err := s.store.GetCAPA(ctx, capaID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "capa not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to get capa")
	}

	now := requestcontext.Now(ctx)
	if err := c.Transition(next, now); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCAPA(ctx, c); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to update capa")
	}

	if next == finding.CAPARejected {
		a, err := s.getAudit(ctx, c.AuditID)
		if err == nil {
			s.emit(ctx, notify.Event{
				Kind:       notify.KindCAPARejected,
				Timestamp:  now,
				AuditID:    a.ID,
				AuditCode:  a.Code,
				EntityType: a.EntityType,
				EntityID:   a.EntityID,
				CAPAID:     c.ID,
				Detail:     c.Code,
			})
		}
	}
	return c, nil
}

// AssignCAPA sets the CAPA owner.
func (s *Service) AssignCAPA(ctx context.Context, capaID id.CAPAID, owner id.UserID) (*finding.CAPA, error) {
	c, err := s.store.GetCAPA(ctx, capaID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "capa not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to get capa")
	}
	c.AssignedTo = owner
	c.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.UpdateCAPA(ctx, c); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to update capa")
	}
	return c, nil
}

func (s *Service) transition(ctx context.Context, auditID id.AuditID, next audit.Status) (*audit.Audit, error) {
	a, err := s.getAudit(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if err := a.Transition(next, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAudit(ctx, a); err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to update audit")
	}
	return a, nil
}

func (s *Service) getAudit(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	if auditID.IsNil() {
		return nil, derrors.New(derrors.CodeInvalidInput, "audit id is required")
	}
	a, err := s.store.GetAudit(ctx, auditID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "audit not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to get audit")
	}
	return a, nil
}

// emit reports a transition to the notification dispatcher. Fire-and-forget:
// failures are logged, never propagated.
func (s *Service) emit(ctx context.Context, event notify.Event) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "notify emit failed",
			"kind", event.Kind,
			"audit_code", event.AuditCode,
			"error", err,
		)
	}
}
