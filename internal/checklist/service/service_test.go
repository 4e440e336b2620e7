package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/checklist"
	"aegis/internal/checklist/store"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/requestcontext"
)

func validTemplate() *checklist.Template {
	return &checklist.Template{
		ID:         id.TemplateID(uuid.New()),
		Code:       "TPL-CS",
		Name:       "Supplier Intake",
		EntityType: id.EntitySupplier,
		Scoring:    checklist.ScoringConfig{PassThreshold: 85, CriticalFailOverrides: true},
		Sections: []checklist.Section{
			{ID: "docs", Order: 1, Name: "Documentation", Weight: 100, Items: []checklist.Item{
				{ID: "halal-cert", Order: 1, Text: "Certification current", Type: checklist.TypePassFail, Critical: true, Evidence: checklist.EvidenceRequired1},
			}},
		},
	}
}

func newService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(store.NewMemory())
	require.NoError(t, err)
	return svc
}

func TestActivate(t *testing.T) {
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(context.Background(), now)

	t.Run("validates and stores the template as active", func(t *testing.T) {
		svc := newService(t)
		tmpl := validTemplate()
		require.NoError(t, svc.Activate(ctx, tmpl))
		assert.Equal(t, checklist.TemplateActive, tmpl.Status)
		assert.Equal(t, now, tmpl.CreatedAt)
		assert.Equal(t, now, tmpl.UpdatedAt)

		stored, err := svc.Get(ctx, tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, tmpl.Code, stored.Code)
	})

	t.Run("rejects an invalid template without storing it", func(t *testing.T) {
		svc := newService(t)
		tmpl := validTemplate()
		tmpl.Sections[0].Weight = 50
		err := svc.Activate(ctx, tmpl)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidTemplate))

		_, err = svc.Get(ctx, tmpl.ID)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
	})

	t.Run("nil template", func(t *testing.T) {
		svc := newService(t)
		err := svc.Activate(ctx, nil)
		require.Error(t, err)
		assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
	})
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	supplier := validTemplate()
	require.NoError(t, svc.Activate(ctx, supplier))

	outlet := validTemplate()
	outlet.ID = id.TemplateID(uuid.New())
	outlet.Code = "TPL-OUT"
	outlet.EntityType = id.EntityOutlet
	require.NoError(t, svc.Activate(ctx, outlet))

	listed, err := svc.ListActive(ctx, id.EntitySupplier)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, supplier.Code, listed[0].Code)

	_, err = svc.ListActive(ctx, "warehouse")
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))
}

func TestGet_Validation(t *testing.T) {
	svc := newService(t)

	_, err := svc.Get(context.Background(), id.TemplateID{})
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeInvalidInput))

	_, err = svc.Get(context.Background(), id.TemplateID(uuid.New()))
	require.Error(t, err)
	assert.True(t, derrors.HasCode(err, derrors.CodeNotFound))
}
