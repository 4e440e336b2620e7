// Package audit owns the audit instance lifecycle: scheduling, the response
// session, submission (scoring, findings, CAPAs in one commit), verification,
// and approval. Ordering across auditors and processes is resolved by the
// store; one in-progress audit is owned by a single session at a time.
package audit

import (
	"fmt"
	"time"

	"aegis/pkg/derrors"
	id "aegis/pkg/domain"

	"github.com/google/uuid"
)

// Status is the audit instance state.
type Status string

const (
	StatusScheduled           Status = "scheduled"
	StatusInProgress          Status = "in_progress"
	StatusSubmitted           Status = "submitted"
	StatusPendingVerification Status = "pending_verification"
	StatusApproved            Status = "approved"
	StatusRejected            Status = "rejected"
	// StatusOverdue: scheduled date passed with no start. Terminal.
	StatusOverdue Status = "overdue"
	// StatusCancelled is terminal from any pre-submission state.
	StatusCancelled Status = "cancelled"
)

// transitions is the allowed state graph. Overdue and cancelled are entered
// by sweeps/cancellation, not by the normal flow.
var transitions = map[Status][]Status{
	StatusScheduled:           {StatusInProgress, StatusOverdue, StatusCancelled},
	StatusInProgress:          {StatusSubmitted, StatusCancelled},
	StatusSubmitted:           {StatusPendingVerification},
	StatusPendingVerification: {StatusApproved, StatusRejected},
}

// CanTransition reports whether moving to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Audit is one audit instance against an entity.
type Audit struct {
	ID           id.AuditID    `json:"id"`
	Code         string        `json:"code"`
	EntityType   id.EntityType `json:"entity_type"`
	EntityID     id.EntityID   `json:"entity_id"`
	TemplateID   id.TemplateID `json:"template_id"`
	AuditorID    id.AuditorID  `json:"auditor_id"`
	Status       Status        `json:"status"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`

	// Scoring output, populated at submission.
	Overall      float64 `json:"overall"`
	Pass         bool    `json:"pass"`
	CriticalFail bool    `json:"critical_fail"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the audit to next, rejecting anything outside the state
// graph.
func (a *Audit) Transition(next Status, now time.Time) error {
	if !a.Status.CanTransition(next) {
		return derrors.Newf(derrors.CodeInvalidState,
			"audit %s cannot move from %s to %s", a.Code, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = now
	return nil
}

// NewAudit schedules an audit instance.
func NewAudit(entityType id.EntityType, entityID id.EntityID, templateID id.TemplateID, auditorID id.AuditorID, scheduledFor, now time.Time) (*Audit, error) {
	if !entityType.IsValid() {
		return nil, derrors.New(derrors.CodeInvalidInput, "invalid entity type")
	}
	if entityID.IsNil() {
		return nil, derrors.New(derrors.CodeInvalidInput, "entity id is required")
	}
	if templateID.IsNil() {
		return nil, derrors.New(derrors.CodeInvalidInput, "template id is required")
	}
	auditID := id.AuditID(uuid.New())
	return &Audit{
		ID:           auditID,
		Code:         auditCode(scheduledFor, auditID),
		EntityType:   entityType,
		EntityID:     entityID,
		TemplateID:   templateID,
		AuditorID:    auditorID,
		Status:       StatusScheduled,
		ScheduledFor: scheduledFor,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func auditCode(scheduledFor time.Time, auditID id.AuditID) string {
	return fmt.Sprintf("AUD-%s-%s", scheduledFor.Format("2006"), uuid.UUID(auditID).String()[:8])
}
