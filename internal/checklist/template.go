// Package checklist defines the audit template model: ordered weighted
// sections of typed items. Templates are authored externally and treated as
// immutable input once activated; the scoring engine trusts any template it
// is handed, so validation runs exactly once at activation time.
package checklist

import (
	"time"

	id "aegis/pkg/domain"
)

// ResponseType enumerates the shapes an item's answer can take.
type ResponseType string

const (
	// TypePassFail is a binary conform/non-conform check.
	TypePassFail ResponseType = "pass_fail"
	// TypeRating is a 1-5 scale.
	TypeRating ResponseType = "rating"
	// TypeNumeric is a measured value scored against a per-item target.
	TypeNumeric ResponseType = "numeric"
	// TypePhoto is satisfied by attached photo evidence alone.
	TypePhoto ResponseType = "photo"
	// TypeText scores on presence of any non-empty text.
	TypeText ResponseType = "text"
	// TypeChecklist is a set of sub-items scored by fraction checked.
	TypeChecklist ResponseType = "checklist"
)

// IsValid checks if the response type is one of the supported enum values.
func (t ResponseType) IsValid() bool {
	switch t {
	case TypePassFail, TypeRating, TypeNumeric, TypePhoto, TypeText, TypeChecklist:
		return true
	}
	return false
}

func (t ResponseType) String() string { return string(t) }

// EvidenceRequirement is the minimum attached evidence count for an item.
type EvidenceRequirement string

const (
	EvidenceNone      EvidenceRequirement = "none"
	EvidenceRequired1 EvidenceRequirement = "required_1"
	EvidenceRequired2 EvidenceRequirement = "required_2"
)

// IsValid checks if the evidence requirement is a supported value.
func (e EvidenceRequirement) IsValid() bool {
	switch e {
	case EvidenceNone, EvidenceRequired1, EvidenceRequired2:
		return true
	}
	return false
}

// MinCount returns the minimum number of attachments the requirement demands.
func (e EvidenceRequirement) MinCount() int {
	switch e {
	case EvidenceRequired1:
		return 1
	case EvidenceRequired2:
		return 2
	}
	return 0
}

// NumericRule configures how a numeric item is scored and flagged.
// Target plus Tolerance define the pass band: |value - target| <= tolerance
// scores 100, anything else 0. When Target is nil the item is excluded from
// weighted averaging entirely and FindingThreshold alone decides whether the
// measured value raises a finding (value below threshold ⇒ finding).
type NumericRule struct {
	Target           *float64 `json:"target,omitempty"`
	Tolerance        float64  `json:"tolerance,omitempty"`
	FindingThreshold *float64 `json:"finding_threshold,omitempty"`
	Unit             string   `json:"unit,omitempty"`
}

// SubItem is one entry of a multi-sub-item checklist item.
type SubItem struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Item is a single checklist question.
type Item struct {
	ID       id.ItemID           `json:"id"`
	Order    int                 `json:"order"`
	Text     string              `json:"text"`
	HelpText string              `json:"help_text,omitempty"`
	Type     ResponseType        `json:"type"`
	Critical bool                `json:"critical"`
	Optional bool                `json:"optional"`
	Evidence EvidenceRequirement `json:"evidence"`
	Numeric  *NumericRule        `json:"numeric,omitempty"`
	SubItems []SubItem           `json:"sub_items,omitempty"`
}

// Section groups items under one weight. Weights across a template's
// sections sum to 100.
type Section struct {
	ID     id.SectionID `json:"id"`
	Order  int          `json:"order"`
	Name   string       `json:"name"`
	Weight float64      `json:"weight"`
	Items  []Item       `json:"items"`
}

// ScoringConfig is the template-level scoring policy.
type ScoringConfig struct {
	// PassThreshold is the minimum overall score (0-100) for a pass.
	PassThreshold float64 `json:"pass_threshold"`
	// CriticalFailOverrides forces a fail when any critical item fails,
	// regardless of the numeric score. Always true in this domain; kept
	// explicit so the template carries its own policy.
	CriticalFailOverrides bool `json:"critical_fail_overrides"`
}

// TemplateStatus tracks the activation lifecycle.
type TemplateStatus string

const (
	TemplateDraft    TemplateStatus = "draft"
	TemplateActive   TemplateStatus = "active"
	TemplateArchived TemplateStatus = "archived"
)

// Template is a full audit checklist definition.
type Template struct {
	ID         id.TemplateID   `json:"id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	EntityType id.EntityType   `json:"entity_type"`
	Status     TemplateStatus  `json:"status"`
	Sections   []Section       `json:"sections"`
	Scoring    ScoringConfig   `json:"scoring"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ItemCount returns the total number of items across all sections.
func (t *Template) ItemCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Items)
	}
	return n
}

// FindItem returns the item and its owning section, or nil when absent.
// An item belongs to exactly one section; Validate enforces uniqueness.
func (t *Template) FindItem(itemID id.ItemID) (*Item, *Section) {
	for si := range t.Sections {
		sec := &t.Sections[si]
		for ii := range sec.Items {
			if sec.Items[ii].ID == itemID {
				return &sec.Items[ii], sec
			}
		}
	}
	return nil, nil
}

// Walk visits every item in checklist order (section order, then item order).
// The submission gate relies on this ordering to report the first offending
// item for UI focus.
func (t *Template) Walk(fn func(sec *Section, item *Item) bool) {
	for si := range t.Sections {
		sec := &t.Sections[si]
		for ii := range sec.Items {
			if !fn(sec, &sec.Items[ii]) {
				return
			}
		}
	}
}
