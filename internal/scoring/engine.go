// Package scoring turns a template plus a response session into a weighted
// score with pass/fail and critical-fail semantics. Everything here is a pure
// function over immutable inputs: no I/O, no clocks, no locking, safe for any
// number of concurrent callers.
package scoring

import (
	"math"
	"strings"

	"aegis/internal/checklist"
	"aegis/internal/session"
	id "aegis/pkg/domain"
)

// ItemScore is the engine's verdict on one answered (or unanswerable) item.
type ItemScore struct {
	ItemID id.ItemID `json:"item_id"`
	// Score is 0-100. Meaningless when Scorable is false.
	Score float64 `json:"score"`
	// Answered mirrors the session's completion rule: response present and
	// evidence requirement met.
	Answered bool `json:"answered"`
	// Scorable is false for unanswered items and for numeric items without a
	// target mapping; such items never enter a section average.
	Scorable bool `json:"scorable"`
	// Failing marks the item as finding-worthy.
	Failing bool `json:"failing"`
	// CriticalFailing marks a failing response on a critical item.
	CriticalFailing bool `json:"critical_failing"`
	// FailReason says why the item is failing, for finding descriptions.
	FailReason FailReason `json:"fail_reason,omitempty"`
}

// FailReason classifies what made an item failing.
type FailReason string

const (
	ReasonFailResponse     FailReason = "fail_response"
	ReasonLowRating        FailReason = "low_rating"
	ReasonEvidenceUnmet    FailReason = "evidence_unmet"
	ReasonNumericOutOfBand FailReason = "numeric_out_of_band"
	ReasonNumericThreshold FailReason = "numeric_below_threshold"
)

// SectionScore aggregates one section.
type SectionScore struct {
	SectionID id.SectionID `json:"section_id"`
	Name      string       `json:"name"`
	Weight    float64      `json:"weight"`
	// Score is the arithmetic mean of the section's answered, scorable
	// items. Zero when nothing in the section was scorable.
	Score         float64 `json:"score"`
	AnsweredItems int     `json:"answered_items"`
	ScorableItems int     `json:"scorable_items"`
	TotalItems    int     `json:"total_items"`
}

// Result is the full scoring output for one audit instance.
type Result struct {
	Items    map[id.ItemID]ItemScore `json:"items"`
	Sections []SectionScore          `json:"sections"`
	// Overall is the weighted mean over sections that had at least one
	// scorable answer; sections with none are excluded from numerator and
	// denominator both, and listed in EmptySections.
	Overall float64 `json:"overall"`
	// Pass is overall >= pass threshold, with the critical-fail override
	// applied.
	Pass bool `json:"pass"`
	// CriticalFail is set when any critical item fails, independent of the
	// numeric score. It, not the score, drives escalation downstream.
	CriticalFail  bool                    `json:"critical_fail"`
	EmptySections []id.SectionID          `json:"empty_sections,omitempty"`
	Completion    session.CompletionStats `json:"completion"`
}

// Score computes the full result. The template is trusted: validation
// happened at activation.
func Score(tmpl *checklist.Template, sess *session.Session) Result {
	result := Result{
		Items:      make(map[id.ItemID]ItemScore, tmpl.ItemCount()),
		Completion: sess.CompletionStats(),
	}

	var weightedSum, weightSum float64

	for si := range tmpl.Sections {
		sec := &tmpl.Sections[si]
		secScore := SectionScore{
			SectionID:  sec.ID,
			Name:       sec.Name,
			Weight:     sec.Weight,
			TotalItems: len(sec.Items),
		}

		var sum float64
		for ii := range sec.Items {
			item := &sec.Items[ii]
			is := scoreItem(item, sess)
			result.Items[item.ID] = is
			if is.CriticalFailing {
				result.CriticalFail = true
			}
			if is.Answered {
				secScore.AnsweredItems++
			}
			if is.Scorable {
				secScore.ScorableItems++
				sum += is.Score
			}
		}

		if secScore.ScorableItems > 0 {
			secScore.Score = sum / float64(secScore.ScorableItems)
			weightedSum += secScore.Score * sec.Weight
			weightSum += sec.Weight
		} else {
			// Never silently treat an untouched section as 100.
			result.EmptySections = append(result.EmptySections, sec.ID)
		}
		result.Sections = append(result.Sections, secScore)
	}

	if weightSum > 0 {
		result.Overall = weightedSum / weightSum
	}

	result.Pass = result.Overall >= tmpl.Scoring.PassThreshold
	if result.CriticalFail && tmpl.Scoring.CriticalFailOverrides {
		result.Pass = false
	}
	return result
}

func scoreItem(item *checklist.Item, sess *session.Session) ItemScore {
	is := ItemScore{ItemID: item.ID}
	resp := sess.Response(item.ID)
	evidence := sess.EvidenceCount(item.ID)
	evidenceMet := evidence >= item.Evidence.MinCount()

	// A critical item with a response but an unmet evidence requirement
	// fails regardless of the response value.
	if item.Critical && resp != nil && !evidenceMet {
		is.Failing = true
		is.CriticalFailing = true
		is.FailReason = ReasonEvidenceUnmet
	}

	if resp == nil {
		// Unanswered: excluded from numerator and denominator both.
		return is
	}
	is.Answered = evidenceMet && answeredValue(item, resp)

	switch item.Type {
	case checklist.TypePassFail:
		is.Scorable = is.Answered
		if resp.PassFail == session.Pass {
			is.Score = 100
		} else {
			is.Score = 0
			is.Failing = true
			is.CriticalFailing = is.CriticalFailing || item.Critical
			if is.FailReason == "" {
				is.FailReason = ReasonFailResponse
			}
		}

	case checklist.TypeRating:
		is.Scorable = is.Answered
		is.Score = float64(resp.Rating-1) / 4 * 100
		if resp.Rating <= 2 {
			is.Failing = true
			is.CriticalFailing = is.CriticalFailing || item.Critical
			if is.FailReason == "" {
				is.FailReason = ReasonLowRating
			}
		}

	case checklist.TypeNumeric:
		rule := item.Numeric
		if rule != nil && rule.Target != nil {
			is.Scorable = is.Answered
			if math.Abs(resp.Numeric-*rule.Target) <= rule.Tolerance {
				is.Score = 100
			} else {
				is.Score = 0
				is.Failing = true
				is.CriticalFailing = is.CriticalFailing || item.Critical
				if is.FailReason == "" {
					is.FailReason = ReasonNumericOutOfBand
				}
			}
		}
		// No target mapping: the item never enters averaging; a declared
		// threshold still drives finding generation.
		if rule != nil && rule.FindingThreshold != nil && resp.Numeric < *rule.FindingThreshold {
			is.Failing = true
			is.CriticalFailing = is.CriticalFailing || item.Critical
			if is.FailReason == "" {
				is.FailReason = ReasonNumericThreshold
			}
		}

	case checklist.TypePhoto:
		is.Scorable = resp != nil
		if evidenceMet {
			is.Score = 100
		} else {
			is.Score = 0
			is.Failing = true
			is.CriticalFailing = is.CriticalFailing || item.Critical
			if is.FailReason == "" {
				is.FailReason = ReasonEvidenceUnmet
			}
		}

	case checklist.TypeText:
		is.Scorable = is.Answered
		if strings.TrimSpace(resp.Text) != "" {
			// Text items score on presence, not content.
			is.Score = 100
		}

	case checklist.TypeChecklist:
		is.Scorable = is.Answered && len(item.SubItems) > 0
		if len(item.SubItems) > 0 {
			checked := 0
			for _, sub := range item.SubItems {
				if resp.Checklist[sub.Key] {
					checked++
				}
			}
			is.Score = float64(checked) / float64(len(item.SubItems)) * 100
		}
	}

	return is
}

// answeredValue applies the per-type presence rule on top of the session's
// evidence gate.
func answeredValue(item *checklist.Item, resp *session.Value) bool {
	if item.Type == checklist.TypeText {
		return strings.TrimSpace(resp.Text) != ""
	}
	return true
}
