package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/audit"
	"aegis/internal/audit/store"
	"aegis/internal/checklist"
	"aegis/internal/finding"
	"aegis/internal/notify"
	"aegis/internal/scoring"
	"aegis/internal/session"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/requestcontext"
)

type stubTemplates struct {
	templates map[id.TemplateID]*checklist.Template
}

func (s *stubTemplates) Get(_ context.Context, templateID id.TemplateID) (*checklist.Template, error) {
	tmpl, ok := s.templates[templateID]
	if !ok {
		return nil, derrors.New(derrors.CodeNotFound, "template not found")
	}
	return tmpl, nil
}

func serviceTemplate() *checklist.Template {
	return &checklist.Template{
		ID:         id.TemplateID(uuid.New()),
		Code:       "TPL-SVC",
		Name:       "Outlet Audit",
		EntityType: id.EntityOutlet,
		Status:     checklist.TemplateActive,
		Scoring:    checklist.ScoringConfig{PassThreshold: 85, CriticalFailOverrides: true},
		Sections: []checklist.Section{
			{ID: "main", Order: 1, Name: "Main", Weight: 100, Items: []checklist.Item{
				{ID: "crit", Order: 1, Text: "Sanitizer in spec", Type: checklist.TypePassFail, Critical: true, Evidence: checklist.EvidenceNone},
				{ID: "plain", Order: 2, Text: "Counters wiped", Type: checklist.TypePassFail, Evidence: checklist.EvidenceNone},
			}},
		},
	}
}

type fixture struct {
	svc      *Service
	store    *store.Memory
	notifier *notify.Memory
	tmpl     *checklist.Template
	ctx      context.Context
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tmpl := serviceTemplate()
	mem := store.NewMemory()
	notifier := notify.NewMemory()
	svc, err := New(mem, &stubTemplates{templates: map[id.TemplateID]*checklist.Template{tmpl.ID: tmpl}},
		WithNotifier(notifier),
	)
	require.NoError(t, err)

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	return &fixture{
		svc:      svc,
		store:    mem,
		notifier: notifier,
		tmpl:     tmpl,
		ctx:      requestcontext.WithTime(context.Background(), now),
		now:      now,
	}
}

func (f *fixture) schedule(t *testing.T) *audit.Audit {
	t.Helper()
	ref := id.EntityRef{Type: id.EntityOutlet, ID: id.EntityID(uuid.New())}
	a, err := f.svc.Schedule(f.ctx, ref, f.tmpl.ID, id.AuditorID(uuid.New()), f.now.Add(24*time.Hour))
	require.NoError(t, err)
	return a
}

func (f *fixture) startedAudit(t *testing.T) *audit.Audit {
	t.Helper()
	a := f.schedule(t)
	started, err := f.svc.Start(f.ctx, a.ID)
	require.NoError(t, err)
	return started
}

func (f *fixture) fullSession(t *testing.T, critPass, plainPass session.PassFail) *session.Session {
	t.Helper()
	sess := session.New(f.tmpl)
	require.NoError(t, sess.SetResponse("crit", session.PassFailValue(critPass)))
	require.NoError(t, sess.SetResponse("plain", session.PassFailValue(plainPass)))
	return sess
}

func TestService_Schedule(t *testing.T) {
	f := newFixture(t)

	t.Run("creates a scheduled audit", func(t *testing.T) {
		a := f.schedule(t)
		assert.Equal(t, audit.StatusScheduled, a.Status)
		assert.NotEmpty(t, a.Code)
		assert.Equal(t, f.now, a.CreatedAt)
	})

	t.Run("rejects entity type mismatch with template", func(t *testing.T) {
		ref := id.EntityRef{Type: id.EntitySupplier, ID: id.EntityID(uuid.New())}
		_, err := f.svc.Schedule(f.ctx, ref, f.tmpl.ID, id.AuditorID(uuid.New()), f.now)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})

	t.Run("rejects unknown template", func(t *testing.T) {
		ref := id.EntityRef{Type: id.EntityOutlet, ID: id.EntityID(uuid.New())}
		_, err := f.svc.Schedule(f.ctx, ref, id.TemplateID(uuid.New()), id.AuditorID(uuid.New()), f.now)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})
}

func TestService_StartAndDraft(t *testing.T) {
	f := newFixture(t)

	a := f.schedule(t)
	started, err := f.svc.Start(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)
	assert.Equal(t, f.now, *started.StartedAt)

	// Draft round-trip through the store.
	sess := session.New(f.tmpl)
	require.NoError(t, sess.SetResponse("crit", session.PassFailValue(session.Pass)))
	require.NoError(t, f.svc.SaveDraft(f.ctx, a.ID, sess))

	restored, err := f.svc.LoadSession(f.ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, restored.Response("crit"))
	assert.Equal(t, session.Pass, restored.Response("crit").PassFail)

	// No draft yet yields an empty session, not an error.
	b := f.startedAudit(t)
	empty, err := f.svc.LoadSession(f.ctx, b.ID)
	require.NoError(t, err)
	assert.Nil(t, empty.Response("crit"))

	t.Run("draft rejected outside in_progress", func(t *testing.T) {
		c := f.schedule(t)
		err := f.svc.SaveDraft(f.ctx, c.ID, session.New(f.tmpl))
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidState))
	})
}

func TestService_Submit(t *testing.T) {
	t.Run("commits audit, findings, and capas together", func(t *testing.T) {
		f := newFixture(t)
		a := f.startedAudit(t)
		sess := f.fullSession(t, session.Pass, session.Fail)

		result, err := f.svc.Submit(f.ctx, a.ID, sess)
		require.NoError(t, err)

		assert.Equal(t, audit.StatusSubmitted, result.Audit.Status)
		assert.InDelta(t, 50.0, result.Audit.Overall, 0.001)
		assert.False(t, result.Audit.Pass)
		assert.False(t, result.Audit.CriticalFail)
		require.NotNil(t, result.Audit.CompletedAt)

		// Stored state matches the returned result.
		stored, err := f.svc.Get(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusSubmitted, stored.Status)

		findings, err := f.svc.Findings(f.ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, id.ItemID("plain"), findings[0].ItemID)
		assert.Equal(t, id.SeverityHigh, findings[0].Severity)

		capas, err := f.svc.CAPAs(f.ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, capas, 1)
		assert.Equal(t, findings[0].ID, capas[0].FindingID)
		assert.Equal(t, f.now.Add(7*24*time.Hour), capas[0].DueDate)
	})

	t.Run("incomplete submission changes nothing", func(t *testing.T) {
		f := newFixture(t)
		a := f.startedAudit(t)
		sess := session.New(f.tmpl) // nothing answered

		_, err := f.svc.Submit(f.ctx, a.ID, sess)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeIncomplete))

		var incomplete *scoring.IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, id.ItemID("crit"), incomplete.ItemID)

		stored, err := f.svc.Get(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusInProgress, stored.Status)
		findings, _ := f.svc.Findings(f.ctx, a.ID)
		assert.Empty(t, findings)
	})

	t.Run("critical fail emits an escalation event", func(t *testing.T) {
		f := newFixture(t)
		a := f.startedAudit(t)
		sess := f.fullSession(t, session.Fail, session.Pass)

		result, err := f.svc.Submit(f.ctx, a.ID, sess)
		require.NoError(t, err)
		assert.True(t, result.Audit.CriticalFail)
		assert.False(t, result.Audit.Pass)

		events := f.notifier.ByKind(notify.KindCriticalFail)
		require.Len(t, events, 1)
		assert.Equal(t, a.ID, events[0].AuditID)
		assert.Equal(t, a.EntityID, events[0].EntityID)
	})

	t.Run("submission rejected outside in_progress", func(t *testing.T) {
		f := newFixture(t)
		a := f.schedule(t)
		_, err := f.svc.Submit(f.ctx, a.ID, f.fullSession(t, session.Pass, session.Pass))
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidState))
	})
}

func TestService_ApproveBlockedByOpenCAPAs(t *testing.T) {
	f := newFixture(t)
	a := f.startedAudit(t)

	// A failing non-critical item yields one finding and one CAPA.
	_, err := f.svc.Submit(f.ctx, a.ID, f.fullSession(t, session.Pass, session.Fail))
	require.NoError(t, err)
	_, err = f.svc.RequestVerification(f.ctx, a.ID)
	require.NoError(t, err)

	capas, err := f.svc.CAPAs(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, capas, 1)

	// Approval is blocked while the CAPA is open.
	_, err = f.svc.Approve(f.ctx, a.ID)
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeConflict))
	var blocked *audit.CAPAsNotClosedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, []id.CAPAID{capas[0].ID}, blocked.Open)

	// Walk the CAPA to closed; approval then unblocks.
	capaID := capas[0].ID
	for _, next := range []finding.CAPAStatus{finding.CAPAInProgress, finding.CAPAPendingVerification, finding.CAPAClosed} {
		_, err = f.svc.TransitionCAPA(f.ctx, capaID, next)
		require.NoError(t, err)
	}

	approved, err := f.svc.Approve(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusApproved, approved.Status)

	events := f.notifier.ByKind(notify.KindAuditApproved)
	require.Len(t, events, 1)
	assert.Equal(t, a.ID, events[0].AuditID)
}

func TestService_RejectAndCancel(t *testing.T) {
	f := newFixture(t)

	t.Run("reject from pending verification", func(t *testing.T) {
		a := f.startedAudit(t)
		_, err := f.svc.Submit(f.ctx, a.ID, f.fullSession(t, session.Pass, session.Pass))
		require.NoError(t, err)
		_, err = f.svc.RequestVerification(f.ctx, a.ID)
		require.NoError(t, err)

		rejected, err := f.svc.Reject(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusRejected, rejected.Status)
	})

	t.Run("cancel before submission", func(t *testing.T) {
		a := f.schedule(t)
		cancelled, err := f.svc.Cancel(f.ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, audit.StatusCancelled, cancelled.Status)
	})

	t.Run("cancel after submission is rejected", func(t *testing.T) {
		a := f.startedAudit(t)
		_, err := f.svc.Submit(f.ctx, a.ID, f.fullSession(t, session.Pass, session.Pass))
		require.NoError(t, err)

		_, err = f.svc.Cancel(f.ctx, a.ID)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidState))
	})
}

func TestService_MarkOverdue(t *testing.T) {
	f := newFixture(t)

	// One audit scheduled in the past, one in the future, one already started.
	past := f.schedule(t)
	pastAudit, err := f.store.GetAudit(f.ctx, past.ID)
	require.NoError(t, err)
	pastAudit.ScheduledFor = f.now.Add(-48 * time.Hour)
	require.NoError(t, f.store.UpdateAudit(f.ctx, pastAudit))

	future := f.schedule(t)
	started := f.startedAudit(t)

	marked, err := f.svc.MarkOverdue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	a, err := f.svc.Get(f.ctx, past.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusOverdue, a.Status)

	a, err = f.svc.Get(f.ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusScheduled, a.Status)

	a, err = f.svc.Get(f.ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusInProgress, a.Status)
}

func TestService_CAPALifecycle(t *testing.T) {
	f := newFixture(t)
	a := f.startedAudit(t)
	_, err := f.svc.Submit(f.ctx, a.ID, f.fullSession(t, session.Pass, session.Fail))
	require.NoError(t, err)

	capas, err := f.svc.CAPAs(f.ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, capas, 1)
	capaID := capas[0].ID

	t.Run("assign sets the owner", func(t *testing.T) {
		owner := id.UserID(uuid.New())
		c, err := f.svc.AssignCAPA(f.ctx, capaID, owner)
		require.NoError(t, err)
		assert.Equal(t, owner, c.AssignedTo)
	})

	t.Run("invalid transition leaves the capa unchanged", func(t *testing.T) {
		_, err := f.svc.TransitionCAPA(f.ctx, capaID, finding.CAPAClosed)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidState))

		c, err := f.store.GetCAPA(f.ctx, capaID)
		require.NoError(t, err)
		assert.Equal(t, finding.CAPAOpen, c.Status)
	})

	t.Run("rejection at verification emits an event", func(t *testing.T) {
		_, err := f.svc.TransitionCAPA(f.ctx, capaID, finding.CAPAInProgress)
		require.NoError(t, err)
		_, err = f.svc.TransitionCAPA(f.ctx, capaID, finding.CAPAPendingVerification)
		require.NoError(t, err)
		_, err = f.svc.TransitionCAPA(f.ctx, capaID, finding.CAPARejected)
		require.NoError(t, err)

		events := f.notifier.ByKind(notify.KindCAPARejected)
		require.Len(t, events, 1)
		assert.Equal(t, capaID, events[0].CAPAID)
	})

	t.Run("unknown capa", func(t *testing.T) {
		_, err := f.svc.TransitionCAPA(f.ctx, id.CAPAID(uuid.New()), finding.CAPAInProgress)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})
}
