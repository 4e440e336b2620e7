// Package store provides template persistence. The memory store doubles as
// the unit-test fake; the postgres store is the production template source.
package store

import (
	"context"
	"sync"

	"aegis/internal/checklist"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// Memory is an in-memory template store guarded by a RWMutex.
type Memory struct {
	mu        sync.RWMutex
	templates map[id.TemplateID]*checklist.Template
}

// NewMemory creates an empty in-memory template store.
func NewMemory() *Memory {
	return &Memory{templates: make(map[id.TemplateID]*checklist.Template)}
}

// Put inserts or replaces a template.
func (s *Memory) Put(_ context.Context, tmpl *checklist.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tmpl
	s.templates[tmpl.ID] = &cp
	return nil
}

// Get returns the template or sentinel.ErrNotFound.
func (s *Memory) Get(_ context.Context, templateID id.TemplateID) (*checklist.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[templateID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *tmpl
	return &cp, nil
}

// ListActive returns every active template for the entity type.
func (s *Memory) ListActive(_ context.Context, entityType id.EntityType) ([]*checklist.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*checklist.Template
	for _, tmpl := range s.templates {
		if tmpl.Status == checklist.TemplateActive && tmpl.EntityType == entityType {
			cp := *tmpl
			out = append(out, &cp)
		}
	}
	return out, nil
}
