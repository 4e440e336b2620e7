// Package service orchestrates the template lifecycle. Activation is the one
// moment templates are validated; afterwards the rest of the system treats
// them as trusted, immutable input.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aegis/internal/checklist"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/requestcontext"
)

// Store is the template persistence port.
type Store interface {
	Put(ctx context.Context, tmpl *checklist.Template) error
	Get(ctx context.Context, templateID id.TemplateID) (*checklist.Template, error)
	ListActive(ctx context.Context, entityType id.EntityType) ([]*checklist.Template, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("template store is required")
	}
	svc := &Service{store: store}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc, nil
}

// Activate validates the template and persists it as active. A template that
// fails validation is rejected outright, never normalized.
func (s *Service) Activate(ctx context.Context, tmpl *checklist.Template) error {
	if tmpl == nil {
		return derrors.New(derrors.CodeInvalidInput, "template is required")
	}
	if err := tmpl.Validate(); err != nil {
		s.logger.WarnContext(ctx, "template rejected at activation",
			"template_code", tmpl.Code,
			"error", err,
		)
		return err
	}

	tmpl.Status = checklist.TemplateActive
	tmpl.UpdatedAt = requestcontext.Now(ctx)
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = tmpl.UpdatedAt
	}

	if err := s.store.Put(ctx, tmpl); err != nil {
		return derrors.Wrap(err, derrors.CodeInternal, "failed to store template")
	}

	s.logger.InfoContext(ctx, "template activated",
		"template_id", tmpl.ID,
		"template_code", tmpl.Code,
		"sections", len(tmpl.Sections),
		"items", tmpl.ItemCount(),
	)
	return nil
}

// Get returns a template by id.
func (s *Service) Get(ctx context.Context, templateID id.TemplateID) (*checklist.Template, error) {
	if templateID.IsNil() {
		return nil, derrors.New(derrors.CodeInvalidInput, "template id is required")
	}
	tmpl, err := s.store.Get(ctx, templateID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, derrors.New(derrors.CodeNotFound, "template not found")
		}
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to get template")
	}
	return tmpl, nil
}

// ListActive returns the active templates targeting an entity type.
func (s *Service) ListActive(ctx context.Context, entityType id.EntityType) ([]*checklist.Template, error) {
	if !entityType.IsValid() {
		return nil, derrors.New(derrors.CodeInvalidInput, "invalid entity type")
	}
	templates, err := s.store.ListActive(ctx, entityType)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.CodeInternal, "failed to list templates")
	}
	return templates, nil
}
