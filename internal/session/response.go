// Package session holds the in-progress answers for one audit instance.
// State is purely in-memory during an audit; drafts snapshot it verbatim and
// submission hands it, still immutable from the engine's point of view, to
// the scoring engine.
package session

import (
	"aegis/internal/checklist"
)

// PassFail is the answer to a binary conform/non-conform item.
type PassFail string

const (
	Pass PassFail = "pass"
	Fail PassFail = "fail"
)

// Value is the tagged union of the six response shapes. Exactly the field
// matching Type is meaningful; constructors below keep callers from building
// mismatched values by hand.
type Value struct {
	Type      checklist.ResponseType `json:"type"`
	PassFail  PassFail               `json:"pass_fail,omitempty"`
	Rating    int                    `json:"rating,omitempty"`
	Numeric   float64                `json:"numeric,omitempty"`
	Text      string                 `json:"text,omitempty"`
	Checklist map[string]bool        `json:"checklist,omitempty"`
}

// PassFailValue builds a pass/fail response.
func PassFailValue(v PassFail) Value {
	return Value{Type: checklist.TypePassFail, PassFail: v}
}

// RatingValue builds a 1-5 rating response.
func RatingValue(rating int) Value {
	return Value{Type: checklist.TypeRating, Rating: rating}
}

// NumericValue builds a measured-value response.
func NumericValue(v float64) Value {
	return Value{Type: checklist.TypeNumeric, Numeric: v}
}

// PhotoValue marks a photo item as answered; the score comes from the
// attachment count, not the value.
func PhotoValue() Value {
	return Value{Type: checklist.TypePhoto}
}

// TextValue builds a free-text response.
func TextValue(text string) Value {
	return Value{Type: checklist.TypeText, Text: text}
}

// ChecklistValue builds a sub-item checklist response keyed by sub-item key.
func ChecklistValue(checked map[string]bool) Value {
	cp := make(map[string]bool, len(checked))
	for k, v := range checked {
		cp[k] = v
	}
	return Value{Type: checklist.TypeChecklist, Checklist: cp}
}

// EvidenceState distinguishes already-persisted references from blobs still
// waiting on the upload collaborator.
type EvidenceState string

const (
	// EvidenceStored references an object the evidence store already holds.
	EvidenceStored EvidenceState = "stored"
	// EvidencePending is a local blob not yet uploaded. Pending attachments
	// still count toward evidence requirements; upload completion is the
	// caller's concern.
	EvidencePending EvidenceState = "pending"
)

// Evidence is one attachment on an item's response. Ref is opaque to the
// core: a storage key when stored, a local handle when pending.
type Evidence struct {
	State    EvidenceState `json:"state"`
	Ref      string        `json:"ref"`
	FileName string        `json:"file_name,omitempty"`
	MimeType string        `json:"mime_type,omitempty"`
}
