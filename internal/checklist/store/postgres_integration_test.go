//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"aegis/internal/checklist"
	"aegis/internal/checklist/store"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) newTemplate(code string, entityType id.EntityType, status checklist.TemplateStatus) *checklist.Template {
	target := 4.0
	threshold := -15.0
	return &checklist.Template{
		ID:         id.TemplateID(uuid.New()),
		Code:       code,
		Name:       "Monthly Inspection " + code,
		EntityType: entityType,
		Status:     status,
		Sections: []checklist.Section{
			{
				ID: "hygiene", Order: 1, Name: "Hygiene", Weight: 60,
				Items: []checklist.Item{
					{
						ID: "crit", Order: 1, Text: "Hand wash station stocked",
						Type: checklist.TypePassFail, Critical: true,
						Evidence: checklist.EvidenceRequired1,
					},
					{
						ID: "chiller-temp", Order: 2, Text: "Chiller temperature",
						Type: checklist.TypeNumeric, Evidence: checklist.EvidenceNone,
						Numeric: &checklist.NumericRule{Target: &target, Tolerance: 1, Unit: "°C"},
					},
				},
			},
			{
				ID: "storage", Order: 2, Name: "Storage", Weight: 40,
				Items: []checklist.Item{
					{
						ID: "freezer-temp", Order: 1, Text: "Freezer temperature",
						Type: checklist.TypeNumeric, Evidence: checklist.EvidenceNone,
						Numeric: &checklist.NumericRule{FindingThreshold: &threshold, Unit: "°C"},
					},
					{
						ID: "steps", Order: 2, Text: "Receiving steps", Optional: true,
						Type: checklist.TypeChecklist, Evidence: checklist.EvidenceNone,
						SubItems: []checklist.SubItem{
							{Key: "gloves", Text: "Gloves worn"},
							{Key: "log", Text: "Delivery logged"},
						},
					},
				},
			},
		},
		Scoring:   checklist.ScoringConfig{PassThreshold: 80, CriticalFailOverrides: true},
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
}

func (s *PostgresStoreSuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	tmpl := s.newTemplate("TPL-IT-001", id.EntityOutlet, checklist.TemplateActive)
	s.Require().NoError(s.store.Put(ctx, tmpl))

	got, err := s.store.Get(ctx, tmpl.ID)
	s.Require().NoError(err)
	s.Equal(tmpl.ID, got.ID)
	s.Equal(tmpl.Code, got.Code)
	s.Equal(tmpl.Name, got.Name)
	s.Equal(id.EntityOutlet, got.EntityType)
	s.Equal(checklist.TemplateActive, got.Status)
	s.Equal(tmpl.Scoring, got.Scoring)
	// The section tree, numeric rules and sub-items included, survives the
	// JSONB round-trip structurally intact.
	s.Equal(tmpl.Sections, got.Sections)
	s.WithinDuration(tmpl.CreatedAt, got.CreatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestPutReplacesWhole() {
	ctx := context.Background()
	tmpl := s.newTemplate("TPL-IT-001", id.EntityOutlet, checklist.TemplateDraft)
	s.Require().NoError(s.store.Put(ctx, tmpl))

	tmpl.Status = checklist.TemplateActive
	tmpl.Name = "Monthly Inspection v2"
	tmpl.Sections = tmpl.Sections[:1]
	tmpl.Sections[0].Weight = 100
	tmpl.UpdatedAt = s.now.Add(time.Hour)
	s.Require().NoError(s.store.Put(ctx, tmpl))

	got, err := s.store.Get(ctx, tmpl.ID)
	s.Require().NoError(err)
	s.Equal(checklist.TemplateActive, got.Status)
	s.Equal("Monthly Inspection v2", got.Name)
	s.Require().Len(got.Sections, 1)
	s.Equal(float64(100), got.Sections[0].Weight)
	s.WithinDuration(tmpl.UpdatedAt, got.UpdatedAt, time.Millisecond)
}

func (s *PostgresStoreSuite) TestGet_NotFound() {
	_, err := s.store.Get(context.Background(), id.TemplateID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListActive() {
	ctx := context.Background()

	second := s.newTemplate("TPL-IT-002", id.EntityOutlet, checklist.TemplateActive)
	first := s.newTemplate("TPL-IT-001", id.EntityOutlet, checklist.TemplateActive)
	draft := s.newTemplate("TPL-IT-003", id.EntityOutlet, checklist.TemplateDraft)
	archived := s.newTemplate("TPL-IT-004", id.EntityOutlet, checklist.TemplateArchived)
	supplier := s.newTemplate("TPL-IT-005", id.EntitySupplier, checklist.TemplateActive)
	for _, tmpl := range []*checklist.Template{second, first, draft, archived, supplier} {
		s.Require().NoError(s.store.Put(ctx, tmpl))
	}

	got, err := s.store.ListActive(ctx, id.EntityOutlet)
	s.Require().NoError(err)
	s.Require().Len(got, 2, "draft and archived templates are not offered for scheduling")
	s.Equal(first.ID, got[0].ID, "active templates list in code order")
	s.Equal(second.ID, got[1].ID)

	got, err = s.store.ListActive(ctx, id.EntitySupplier)
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(supplier.ID, got[0].ID)
}
