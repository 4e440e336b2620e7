package checklist

import (
	"fmt"
	"math"
	"strings"

	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
)

// weightTolerance absorbs floating error when summing section weights.
const weightTolerance = 0.001

// Validate checks structural invariants before a template may be activated.
// It returns a CodeInvalidTemplate error listing every violation found, so
// template authors can fix a bad upload in one round trip.
//
// Scoring never re-validates: an invalid template must be impossible to hand
// to the engine, because scoring it would produce a misleading number rather
// than a visible error.
func (t *Template) Validate() error {
	var problems []string

	if t.Name == "" {
		problems = append(problems, "template name is required")
	}
	if !t.EntityType.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown entity type %q", t.EntityType))
	}
	if t.Scoring.PassThreshold < 0 || t.Scoring.PassThreshold > 100 {
		problems = append(problems, fmt.Sprintf("pass threshold %.2f outside [0,100]", t.Scoring.PassThreshold))
	}
	if len(t.Sections) == 0 {
		problems = append(problems, "template has no sections")
	}

	var weightSum float64
	seenSections := make(map[id.SectionID]bool, len(t.Sections))
	seenItems := make(map[id.ItemID]bool, t.ItemCount())

	for _, sec := range t.Sections {
		if sec.ID == "" {
			problems = append(problems, "section with empty id")
		} else if seenSections[sec.ID] {
			problems = append(problems, fmt.Sprintf("duplicate section id %q", sec.ID))
		}
		seenSections[sec.ID] = true

		if sec.Weight < 0 || sec.Weight > 100 {
			problems = append(problems, fmt.Sprintf("section %q weight %.2f outside [0,100]", sec.ID, sec.Weight))
		}
		weightSum += sec.Weight

		if len(sec.Items) == 0 {
			problems = append(problems, fmt.Sprintf("section %q has no items", sec.ID))
		}
		for _, item := range sec.Items {
			problems = append(problems, validateItem(sec.ID, item, seenItems)...)
		}
	}

	if len(t.Sections) > 0 && math.Abs(weightSum-100) > weightTolerance {
		problems = append(problems, fmt.Sprintf("section weights sum to %.3f, want 100", weightSum))
	}

	if len(problems) > 0 {
		return derrors.Newf(derrors.CodeInvalidTemplate,
			"template %s rejected: %s", t.Code, strings.Join(problems, "; "))
	}
	return nil
}

func validateItem(secID id.SectionID, item Item, seen map[id.ItemID]bool) []string {
	var problems []string

	if item.ID == "" {
		problems = append(problems, fmt.Sprintf("section %q: item with empty id", secID))
	} else if seen[item.ID] {
		// An item belongs to exactly one section.
		problems = append(problems, fmt.Sprintf("item %q appears more than once", item.ID))
	}
	seen[item.ID] = true

	if !item.Type.IsValid() {
		problems = append(problems, fmt.Sprintf("item %q: unrecognized response type %q", item.ID, item.Type))
		return problems
	}
	if !item.Evidence.IsValid() {
		problems = append(problems, fmt.Sprintf("item %q: unrecognized evidence requirement %q", item.ID, item.Evidence))
	}

	switch item.Type {
	case TypePhoto:
		// A photo item with no evidence requirement can never score.
		if item.Evidence == EvidenceNone {
			problems = append(problems, fmt.Sprintf("photo item %q must require at least one attachment", item.ID))
		}
	case TypeChecklist:
		if len(item.SubItems) == 0 {
			problems = append(problems, fmt.Sprintf("checklist item %q has no sub-items", item.ID))
		}
		subSeen := make(map[string]bool, len(item.SubItems))
		for _, sub := range item.SubItems {
			if sub.Key == "" {
				problems = append(problems, fmt.Sprintf("checklist item %q: sub-item with empty key", item.ID))
			} else if subSeen[sub.Key] {
				problems = append(problems, fmt.Sprintf("checklist item %q: duplicate sub-item key %q", item.ID, sub.Key))
			}
			subSeen[sub.Key] = true
		}
	case TypeNumeric:
		if item.Numeric != nil {
			if item.Numeric.Tolerance < 0 {
				problems = append(problems, fmt.Sprintf("numeric item %q: negative tolerance", item.ID))
			}
			if item.Numeric.Target == nil && item.Numeric.FindingThreshold == nil {
				problems = append(problems, fmt.Sprintf("numeric item %q: rule declares neither target nor finding threshold", item.ID))
			}
		}
	}

	if item.Numeric != nil && item.Type != TypeNumeric {
		problems = append(problems, fmt.Sprintf("item %q: numeric rule on non-numeric type %q", item.ID, item.Type))
	}

	return problems
}
