// Package notify defines the notification event port. The core reports
// transitions worth notifying on; message formatting and delivery are
// entirely external. Emission is fire-and-forget: a failed emit is logged,
// never allowed to fail the business operation.
package notify

import (
	"context"
	"time"

	id "aegis/pkg/domain"
)

// Kind enumerates the transitions the core reports.
type Kind string

const (
	// KindAuditApproved: an audit reached approved.
	KindAuditApproved Kind = "audit_approved"
	// KindCAPARejected: a corrective action was rejected at verification.
	KindCAPARejected Kind = "capa_rejected"
	// KindCriticalFail: scoring flagged a critical-item failure. This, not
	// the numeric score, is the primary escalation trigger.
	KindCriticalFail Kind = "critical_fail_detected"
)

// Event is one notifiable transition.
type Event struct {
	Kind       Kind          `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	AuditID    id.AuditID    `json:"audit_id"`
	AuditCode  string        `json:"audit_code"`
	EntityType id.EntityType `json:"entity_type"`
	EntityID   id.EntityID   `json:"entity_id"`
	CAPAID     id.CAPAID     `json:"capa_id,omitempty"`
	Detail     string        `json:"detail,omitempty"`
}

// Notifier receives events for external delivery.
type Notifier interface {
	Emit(ctx context.Context, event Event) error
}
