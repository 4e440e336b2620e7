// Package store persists audits, findings, CAPAs, and draft sessions. The
// memory store backs unit tests and single-node development; postgres is the
// production store and the only place cross-process ordering is resolved.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"aegis/internal/audit"
	"aegis/internal/finding"
	"aegis/internal/session"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"
)

// Memory is an in-memory audit store guarded by a single RWMutex.
type Memory struct {
	mu       sync.RWMutex
	audits   map[id.AuditID]*audit.Audit
	findings map[id.AuditID][]finding.Finding
	capas    map[id.CAPAID]*finding.CAPA
	drafts   map[id.AuditID]map[id.ItemID]session.Entry
}

// NewMemory creates an empty in-memory audit store.
func NewMemory() *Memory {
	return &Memory{
		audits:   make(map[id.AuditID]*audit.Audit),
		findings: make(map[id.AuditID][]finding.Finding),
		capas:    make(map[id.CAPAID]*finding.CAPA),
		drafts:   make(map[id.AuditID]map[id.ItemID]session.Entry),
	}
}

func (s *Memory) CreateAudit(_ context.Context, a *audit.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.audits[a.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *a
	s.audits[a.ID] = &cp
	return nil
}

func (s *Memory) GetAudit(_ context.Context, auditID id.AuditID) (*audit.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.audits[auditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Memory) UpdateAudit(_ context.Context, a *audit.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *a
	s.audits[a.ID] = &cp
	return nil
}

// ListCompletedByEntity returns submitted-or-later audits for one entity,
// newest completion first. This is the aggregator's history read.
func (s *Memory) ListCompletedByEntity(_ context.Context, ref id.EntityRef) ([]*audit.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Audit
	for _, a := range s.audits {
		if a.EntityType != ref.Type || a.EntityID != ref.ID || a.CompletedAt == nil {
			continue
		}
		switch a.Status {
		case audit.StatusSubmitted, audit.StatusPendingVerification, audit.StatusApproved:
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CompletedAt.After(*out[j].CompletedAt)
	})
	return out, nil
}

// ListScheduledBefore returns audits still scheduled with a date before the
// cutoff, for the overdue sweep.
func (s *Memory) ListScheduledBefore(_ context.Context, cutoff time.Time) ([]*audit.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*audit.Audit
	for _, a := range s.audits {
		if a.Status == audit.StatusScheduled && a.ScheduledFor.Before(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Memory) SaveDraft(_ context.Context, auditID id.AuditID, entries map[id.ItemID]session.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[id.ItemID]session.Entry, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	s.drafts[auditID] = cp
	return nil
}

func (s *Memory) GetDraft(_ context.Context, auditID id.AuditID) (map[id.ItemID]session.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	draft, ok := s.drafts[auditID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := make(map[id.ItemID]session.Entry, len(draft))
	for k, v := range draft {
		cp[k] = v
	}
	return cp, nil
}

// CommitSubmission writes the scored audit and its derived findings and
// CAPAs as one unit, and drops the draft. Memory holds a single lock for the
// duration, so the commit is all-or-nothing here just as it is in postgres.
func (s *Memory) CommitSubmission(_ context.Context, a *audit.Audit, findings []finding.Finding, capas []finding.CAPA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *a
	s.audits[a.ID] = &cp
	s.findings[a.ID] = append([]finding.Finding(nil), findings...)
	for i := range capas {
		c := capas[i]
		s.capas[c.ID] = &c
	}
	delete(s.drafts, a.ID)
	return nil
}

func (s *Memory) ListFindings(_ context.Context, auditID id.AuditID) ([]finding.Finding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]finding.Finding(nil), s.findings[auditID]...), nil
}

func (s *Memory) GetCAPA(_ context.Context, capaID id.CAPAID) (*finding.CAPA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.capas[capaID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Memory) UpdateCAPA(_ context.Context, c *finding.CAPA) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.capas[c.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *c
	s.capas[c.ID] = &cp
	return nil
}

func (s *Memory) ListCAPAsByAudit(_ context.Context, auditID id.AuditID) ([]finding.CAPA, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []finding.CAPA
	for _, c := range s.capas {
		if c.AuditID == auditID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// ListEntities returns the distinct entities with any audit on record. The
// health batch uses the audit ledger as its fleet registry.
func (s *Memory) ListEntities(_ context.Context) ([]id.EntityRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[id.EntityRef]struct{})
	var out []id.EntityRef
	for _, a := range s.audits {
		ref := id.EntityRef{Type: a.EntityType, ID: a.EntityID}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// CountOpenCAPAsByEntity counts not-yet-closed CAPAs across an entity's
// audits, for the health aggregator's CAPA-pressure component.
func (s *Memory) CountOpenCAPAsByEntity(_ context.Context, ref id.EntityRef) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, c := range s.capas {
		a, ok := s.audits[c.AuditID]
		if !ok || a.EntityType != ref.Type || a.EntityID != ref.ID {
			continue
		}
		if c.Status != finding.CAPAClosed && c.Status != finding.CAPARejected {
			count++
		}
	}
	return count, nil
}
