// Package finding derives non-conformance records and their corrective
// actions from a scored submission. Generation happens exactly once, at
// successful submission; findings are never edited afterwards except status.
package finding

import (
	"time"

	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
)

// FindingStatus is the simple open/resolved lifecycle of a finding.
type FindingStatus string

const (
	FindingOpen     FindingStatus = "open"
	FindingResolved FindingStatus = "resolved"
)

// Finding is a recorded non-conformance derived from one failing item.
type Finding struct {
	ID          id.FindingID  `json:"id"`
	Code        string        `json:"code"`
	AuditID     id.AuditID    `json:"audit_id"`
	SectionID   id.SectionID  `json:"section_id"`
	SectionName string        `json:"section_name"`
	ItemID      id.ItemID     `json:"item_id"`
	Severity    id.Severity   `json:"severity"`
	Description string        `json:"description"`
	Status      FindingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// CAPAStatus is the corrective-action lifecycle.
type CAPAStatus string

const (
	CAPAOpen                CAPAStatus = "open"
	CAPAInProgress          CAPAStatus = "in_progress"
	CAPAPendingVerification CAPAStatus = "pending_verification"
	CAPAClosed              CAPAStatus = "closed"
	CAPARejected            CAPAStatus = "rejected"
)

// capaTransitions is the allowed status graph. Closed and rejected are
// terminal.
var capaTransitions = map[CAPAStatus][]CAPAStatus{
	CAPAOpen:                {CAPAInProgress},
	CAPAInProgress:          {CAPAPendingVerification},
	CAPAPendingVerification: {CAPAClosed, CAPARejected},
}

// CanTransition reports whether moving to next is allowed.
func (s CAPAStatus) CanTransition(next CAPAStatus) bool {
	for _, allowed := range capaTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CAPA is a corrective and preventive action generated from a finding.
// Priority mirrors finding severity one-to-one.
type CAPA struct {
	ID          id.CAPAID    `json:"id"`
	Code        string       `json:"code"`
	FindingID   id.FindingID `json:"finding_id"`
	AuditID     id.AuditID   `json:"audit_id"`
	Priority    id.Severity  `json:"priority"`
	Description string       `json:"description"`
	AssignedTo  id.UserID    `json:"assigned_to"`
	DueDate     time.Time    `json:"due_date"`
	Status      CAPAStatus   `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Transition moves the CAPA to next, rejecting anything the status graph
// does not allow.
func (c *CAPA) Transition(next CAPAStatus, now time.Time) error {
	if !c.Status.CanTransition(next) {
		return derrors.Newf(derrors.CodeInvalidState,
			"capa %s cannot move from %s to %s", c.Code, c.Status, next)
	}
	c.Status = next
	c.UpdatedAt = now
	return nil
}

// DuePolicy maps CAPA priority to the remediation window. The day counts are
// operational policy, not a structural invariant, so they are configuration.
type DuePolicy struct {
	Critical time.Duration
	High     time.Duration
	Medium   time.Duration
	Low      time.Duration
}

// DefaultDuePolicy is the fleet-wide default remediation schedule.
func DefaultDuePolicy() DuePolicy {
	return DuePolicy{
		Critical: 2 * 24 * time.Hour,
		High:     7 * 24 * time.Hour,
		Medium:   14 * 24 * time.Hour,
		Low:      30 * 24 * time.Hour,
	}
}

// Window returns the due window for a priority.
func (p DuePolicy) Window(priority id.Severity) time.Duration {
	switch priority {
	case id.SeverityCritical:
		return p.Critical
	case id.SeverityHigh:
		return p.High
	case id.SeverityMedium:
		return p.Medium
	}
	return p.Low
}
