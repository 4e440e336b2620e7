package scoring

import (
	"fmt"
	"strings"

	"aegis/internal/checklist"
	"aegis/internal/session"
	id "aegis/pkg/domain"
)

// IncompleteReason says what the first offending item is missing.
type IncompleteReason string

const (
	// IncompleteUnanswered: the item has no response.
	IncompleteUnanswered IncompleteReason = "unanswered"
	// IncompleteEvidence: the item's evidence requirement is unmet.
	IncompleteEvidence IncompleteReason = "evidence"
)

// IncompleteError rejects a submission. It carries the first offending item
// in checklist order so the caller can focus it; nothing persisted changes.
type IncompleteError struct {
	ItemID   id.ItemID
	Reason   IncompleteReason
	Required int
	Attached int
}

func (e *IncompleteError) Error() string {
	if e.Reason == IncompleteEvidence {
		return fmt.Sprintf("incomplete submission: item %q has %d of %d required evidence attachments",
			e.ItemID, e.Attached, e.Required)
	}
	return fmt.Sprintf("incomplete submission: item %q is unanswered", e.ItemID)
}

// CheckSubmittable enforces the submission gate. It walks items in checklist
// order and returns an IncompleteError for the first item that either lacks a
// response or falls short of its evidence requirement. Optional items are
// exempt unless they carry a response, in which case an answered
// evidence-required item must still meet its attachment count.
func CheckSubmittable(tmpl *checklist.Template, sess *session.Session) error {
	var offending *IncompleteError
	tmpl.Walk(func(_ *checklist.Section, item *checklist.Item) bool {
		resp := sess.Response(item.ID)

		if resp == nil {
			if item.Optional {
				return true
			}
			offending = &IncompleteError{ItemID: item.ID, Reason: IncompleteUnanswered}
			return false
		}

		if item.Type == checklist.TypeText && strings.TrimSpace(resp.Text) == "" && !item.Optional {
			offending = &IncompleteError{ItemID: item.ID, Reason: IncompleteUnanswered}
			return false
		}

		required := item.Evidence.MinCount()
		if attached := sess.EvidenceCount(item.ID); attached < required {
			offending = &IncompleteError{
				ItemID:   item.ID,
				Reason:   IncompleteEvidence,
				Required: required,
				Attached: attached,
			}
			return false
		}
		return true
	})
	if offending != nil {
		return offending
	}
	return nil
}
