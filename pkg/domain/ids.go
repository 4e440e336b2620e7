// Package domain holds shared identifier types and small enums used across
// modules. Typed IDs keep audit, template, and entity references from being
// mixed up at compile time.
package domain

import (
	"github.com/google/uuid"

	"aegis/pkg/derrors"
)

// UUID-backed identifiers. Parse helpers enforce the invariant that IDs are
// valid, non-nil UUIDs at trust boundaries (HTTP handlers, store reads).
type (
	TemplateID uuid.UUID
	AuditID    uuid.UUID
	FindingID  uuid.UUID
	CAPAID     uuid.UUID
	EntityID   uuid.UUID
	AuditorID  uuid.UUID
	UserID     uuid.UUID
)

// String-backed identifiers. Sections and items are authored externally and
// referenced by template-scoped keys rather than UUIDs.
type (
	SectionID string
	ItemID    string
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, derrors.New(derrors.CodeInvalidInput, kind+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, derrors.Wrap(err, derrors.CodeInvalidInput, "invalid "+kind+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, derrors.New(derrors.CodeInvalidInput, kind+" id cannot be nil")
	}
	return u, nil
}

func ParseTemplateID(s string) (TemplateID, error) {
	u, err := parseUUID("template", s)
	return TemplateID(u), err
}

func ParseAuditID(s string) (AuditID, error) {
	u, err := parseUUID("audit", s)
	return AuditID(u), err
}

func ParseFindingID(s string) (FindingID, error) {
	u, err := parseUUID("finding", s)
	return FindingID(u), err
}

func ParseCAPAID(s string) (CAPAID, error) {
	u, err := parseUUID("capa", s)
	return CAPAID(u), err
}

func ParseEntityID(s string) (EntityID, error) {
	u, err := parseUUID("entity", s)
	return EntityID(u), err
}

func ParseAuditorID(s string) (AuditorID, error) {
	u, err := parseUUID("auditor", s)
	return AuditorID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user", s)
	return UserID(u), err
}

func (id TemplateID) String() string { return uuid.UUID(id).String() }
func (id AuditID) String() string    { return uuid.UUID(id).String() }
func (id FindingID) String() string  { return uuid.UUID(id).String() }
func (id CAPAID) String() string     { return uuid.UUID(id).String() }
func (id EntityID) String() string   { return uuid.UUID(id).String() }
func (id AuditorID) String() string  { return uuid.UUID(id).String() }
func (id UserID) String() string     { return uuid.UUID(id).String() }

func (id TemplateID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuditID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id FindingID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CAPAID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id EntityID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id AuditorID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

// Text marshaling keeps typed IDs as canonical UUID strings on the wire and
// in JSONB columns; a named type does not inherit these from uuid.UUID.

func (id TemplateID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AuditID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id FindingID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id CAPAID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id EntityID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id AuditorID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id UserID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *TemplateID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *FindingID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *CAPAID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EntityID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditorID) UnmarshalText(b []byte) error  { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *UserID) UnmarshalText(b []byte) error     { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id SectionID) String() string { return string(id) }
func (id ItemID) String() string    { return string(id) }
