package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/audit"
	auditstore "aegis/internal/audit/store"
	"aegis/internal/health"
	"aegis/internal/health/gate"
	healthstore "aegis/internal/health/store"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/requestcontext"
)

type stubSignals struct {
	incidents map[id.EntityRef]int
	expiry    map[id.EntityRef]*time.Time
}

func (s *stubSignals) OpenIncidents(_ context.Context, ref id.EntityRef) (int, error) {
	return s.incidents[ref], nil
}

func (s *stubSignals) CertificationExpiry(_ context.Context, ref id.EntityRef) (*time.Time, error) {
	return s.expiry[ref], nil
}

type fixture struct {
	audits  *auditstore.Memory
	records *healthstore.Memory
	gate    *gate.Memory
	now     time.Time
	ctx     context.Context
}

func newFixture() *fixture {
	now := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	return &fixture{
		audits:  auditstore.NewMemory(),
		records: healthstore.NewMemory(),
		gate:    gate.NewMemory(),
		now:     now,
		ctx:     requestcontext.WithTime(context.Background(), now),
	}
}

func (f *fixture) newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New(f.audits, f.audits, f.records, f.gate, time.Hour, opts...)
	require.NoError(t, err)
	return svc
}

// seedAudit records a completed audit for the entity with the given overall
// score and completion age.
func (f *fixture) seedAudit(t *testing.T, ref id.EntityRef, overall float64, age time.Duration) {
	t.Helper()
	completed := f.now.Add(-age)
	a := &audit.Audit{
		ID:           id.AuditID(uuid.New()),
		Code:         "AUD-SEED-" + uuid.NewString()[:8],
		EntityType:   ref.Type,
		EntityID:     ref.ID,
		TemplateID:   id.TemplateID(uuid.New()),
		Status:       audit.StatusApproved,
		ScheduledFor: completed.Add(-24 * time.Hour),
		CompletedAt:  &completed,
		Overall:      overall,
		Pass:         overall >= 85,
		CreatedAt:    completed,
		UpdatedAt:    completed,
	}
	require.NoError(t, f.audits.CreateAudit(f.ctx, a))
}

func outletRef() id.EntityRef {
	return id.EntityRef{Type: id.EntityOutlet, ID: id.EntityID(uuid.New())}
}

func TestNew_Validation(t *testing.T) {
	f := newFixture()

	_, err := New(nil, f.audits, f.records, f.gate, time.Hour)
	require.Error(t, err)

	_, err = New(f.audits, f.audits, f.records, f.gate, 0)
	require.Error(t, err)

	badWeights := map[id.EntityType]health.Weights{
		id.EntityOutlet: {health.ComponentLatestAudit: 0.5},
	}
	_, err = New(f.audits, f.audits, f.records, f.gate, time.Hour, WithWeights(badWeights))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights for outlet")
}

func TestRunIfDue_GateSkip(t *testing.T) {
	f := newFixture()
	svc := f.newService(t)
	f.seedAudit(t, outletRef(), 90, 24*time.Hour)

	first, err := svc.RunIfDue(f.ctx)
	require.NoError(t, err)
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Entities)
	assert.Equal(t, 1, first.Computed)

	// A second trigger inside the interval skips and reports the watermark.
	later := requestcontext.WithTime(context.Background(), f.now.Add(10*time.Minute))
	second, err := svc.RunIfDue(later)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, f.now, second.LastRun)

	// After the interval elapses the batch runs again.
	due := requestcontext.WithTime(context.Background(), f.now.Add(2*time.Hour))
	third, err := svc.RunIfDue(due)
	require.NoError(t, err)
	assert.False(t, third.Skipped)
}

func TestRunIfDue_ConcurrentTriggers(t *testing.T) {
	f := newFixture()
	svc := f.newService(t)
	for range 5 {
		f.seedAudit(t, outletRef(), 80, 24*time.Hour)
	}

	const triggers = 16
	var wg sync.WaitGroup
	results := make(chan Result, triggers)
	for range triggers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := svc.RunIfDue(f.ctx)
			assert.NoError(t, err)
			results <- result
		}()
	}
	wg.Wait()
	close(results)

	effective := 0
	for result := range results {
		if !result.Skipped {
			effective++
			assert.Equal(t, 5, result.Computed)
		}
	}
	assert.Equal(t, 1, effective, "concurrent triggers must yield exactly one effective pass")
}

func TestRunIfDue_IdempotentRecords(t *testing.T) {
	f := newFixture()
	svc := f.newService(t)
	ref := outletRef()
	f.seedAudit(t, ref, 92, 12*time.Hour)
	f.seedAudit(t, ref, 74, 40*24*time.Hour)

	_, err := svc.RunIfDue(f.ctx)
	require.NoError(t, err)
	first, err := svc.Get(f.ctx, ref)
	require.NoError(t, err)

	// Rerun at the same pinned instant over unchanged history: the stored
	// record is identical, timestamp included.
	require.NoError(t, f.gate.Rollback(f.ctx, time.Time{}))
	_, err = svc.RunIfDue(f.ctx)
	require.NoError(t, err)
	second, err := svc.Get(f.ctx, ref)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, f.now, second.CalculatedAt)
}

func TestComputeEntity_NoData(t *testing.T) {
	f := newFixture()
	svc := f.newService(t)
	ref := outletRef()

	// Entity is on the ledger with only a scheduled audit: no completed
	// history, so the record is No data, not Critical.
	a, err := audit.NewAudit(ref.Type, ref.ID, id.TemplateID(uuid.New()), id.AuditorID(uuid.New()), f.now.Add(time.Hour), f.now)
	require.NoError(t, err)
	require.NoError(t, f.audits.CreateAudit(f.ctx, a))

	result, err := svc.RunIfDue(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Computed)

	score, err := svc.Get(f.ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "No data", score.Label)
	assert.Equal(t, "gray", score.ColorBand)
	assert.Zero(t, score.Overall)
	assert.Empty(t, score.Components)
}

func TestComputeEntity_WeightRenormalization(t *testing.T) {
	f := newFixture()
	ref := outletRef()
	f.seedAudit(t, ref, 90, time.Hour)

	// No signal source wired: incident pressure drops out and the outlet
	// weighting renormalizes over latest (0.45), history (0.25), and CAPA
	// pressure (0.15).
	svc := f.newService(t)
	score, err := svc.Compute(f.ctx, ref)
	require.NoError(t, err)

	require.Contains(t, score.Components, health.ComponentLatestAudit)
	require.Contains(t, score.Components, health.ComponentAuditHistory)
	require.Contains(t, score.Components, health.ComponentCAPAPressure)
	assert.NotContains(t, score.Components, health.ComponentIncidentPressure)

	// One recent audit at 90, no open CAPAs:
	// (90*0.45 + 90*0.25 + 100*0.15) / 0.85.
	want := (90*0.45 + 90*0.25 + 100*0.15) / 0.85
	assert.InDelta(t, want, score.Overall, 0.05)
}

func TestComputeEntity_WithSignals(t *testing.T) {
	f := newFixture()
	ref := outletRef()
	f.seedAudit(t, ref, 100, time.Hour)

	signals := &stubSignals{incidents: map[id.EntityRef]int{ref: 2}}
	svc := f.newService(t, WithSignals(signals))

	score, err := svc.Compute(f.ctx, ref)
	require.NoError(t, err)

	// Two open incidents at 15 points each.
	assert.InDelta(t, 70.0, score.Components[health.ComponentIncidentPressure], 0.001)
	// All four outlet components present, no renormalization.
	want := 100*0.45 + 100*0.25 + 100*0.15 + 70*0.15
	assert.InDelta(t, want, score.Overall, 0.05)
	assert.Equal(t, "Excellent", score.Label)
}

func TestComputeEntity_Bands(t *testing.T) {
	cases := []struct {
		overall float64
		label   string
	}{
		{95, "Excellent"},
		{75, "Good"},
		{55, "Needs Improvement"},
		{30, "Critical"},
	}
	for _, tc := range cases {
		f := newFixture()
		ref := outletRef()
		f.seedAudit(t, ref, tc.overall, time.Minute)

		// Weight the latest audit alone so the overall lands exactly on the
		// seeded score.
		svc := f.newService(t, WithWeights(map[id.EntityType]health.Weights{
			id.EntityOutlet:         {health.ComponentLatestAudit: 1.0},
			id.EntityCentralKitchen: {health.ComponentLatestAudit: 1.0},
			id.EntitySupplier:       {health.ComponentLatestAudit: 1.0},
		}))
		score, err := svc.Compute(f.ctx, ref)
		require.NoError(t, err)
		assert.InDelta(t, tc.overall, score.Overall, 0.01)
		assert.Equal(t, tc.label, score.Label, "overall %.0f", tc.overall)
	}
}

// TestComputeEntity_BandMatchesRoundedOverall pins the label to the overall
// the record publishes: a raw composite of 84.96 is stored as 85.0 and must
// read Excellent, while 84.94 stays below the boundary as 84.9.
func TestComputeEntity_BandMatchesRoundedOverall(t *testing.T) {
	cases := []struct {
		raw    float64
		stored float64
		label  string
	}{
		{84.96, 85.0, "Excellent"},
		{84.94, 84.9, "Good"},
	}
	for _, tc := range cases {
		f := newFixture()
		ref := outletRef()
		f.seedAudit(t, ref, tc.raw, time.Minute)

		svc := f.newService(t, WithWeights(map[id.EntityType]health.Weights{
			id.EntityOutlet:         {health.ComponentLatestAudit: 1.0},
			id.EntityCentralKitchen: {health.ComponentLatestAudit: 1.0},
			id.EntitySupplier:       {health.ComponentLatestAudit: 1.0},
		}))
		score, err := svc.Compute(f.ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, tc.stored, score.Overall, "raw %.2f", tc.raw)
		assert.Equal(t, tc.label, score.Label, "raw %.2f", tc.raw)
	}
}

func TestCompute_InvalidEntityType(t *testing.T) {
	f := newFixture()
	svc := f.newService(t)
	_, err := svc.Compute(f.ctx, id.EntityRef{Type: "warehouse", ID: id.EntityID(uuid.New())})
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture()
	svc := f.newService(t)
	_, err := svc.Get(f.ctx, outletRef())
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
}
