// Package store persists one current health record per entity. The
// aggregator replaces records whole; input history lives in the audit tables.
package store

import (
	"context"
	"sync"

	"aegis/internal/health"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

type key struct {
	entityType id.EntityType
	entityID   id.EntityID
}

// Memory is an in-memory health record store.
type Memory struct {
	mu     sync.RWMutex
	scores map[key]health.Score
}

// NewMemory creates an empty in-memory health store.
func NewMemory() *Memory {
	return &Memory{scores: make(map[key]health.Score)}
}

// Upsert replaces the entity's record whole.
func (s *Memory) Upsert(_ context.Context, score health.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := score
	cp.Components = make(map[health.ComponentKey]float64, len(score.Components))
	for k, v := range score.Components {
		cp.Components[k] = v
	}
	s.scores[key{score.EntityType, score.EntityID}] = cp
	return nil
}

// Get returns the entity's current record.
func (s *Memory) Get(_ context.Context, ref id.EntityRef) (*health.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.scores[key{ref.Type, ref.ID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := score
	cp.Components = make(map[health.ComponentKey]float64, len(score.Components))
	for k, v := range score.Components {
		cp.Components[k] = v
	}
	return &cp, nil
}
