package finding

import (
	"fmt"
	"time"

	"aegis/internal/checklist"
	"aegis/internal/scoring"
	"aegis/internal/session"
	id "aegis/pkg/domain"

	"github.com/google/uuid"
)

// Router optionally supplies a CAPA owner. Routing rules live outside the
// core; the default is unassigned.
type Router interface {
	RouteCAPA(auditID id.AuditID, severity id.Severity) (id.UserID, bool)
}

// Generate derives findings from a scored submission, in checklist order.
// One finding per failing item: pass/fail "fail", rating <= 2, an unmet
// evidence requirement on a critical item, or a numeric threshold breach.
func Generate(tmpl *checklist.Template, sess *session.Session, result scoring.Result, auditID id.AuditID, now time.Time) []Finding {
	var findings []Finding
	seq := 0
	tmpl.Walk(func(sec *checklist.Section, item *checklist.Item) bool {
		is, ok := result.Items[item.ID]
		if !ok || !is.Failing {
			return true
		}
		seq++
		findings = append(findings, Finding{
			ID:          id.FindingID(uuid.New()),
			Code:        findingCode(auditID, seq),
			AuditID:     auditID,
			SectionID:   sec.ID,
			SectionName: sec.Name,
			ItemID:      item.ID,
			Severity:    severityFor(item, sess.Response(item.ID), is),
			Description: describe(item, sess.Note(item.ID)),
			Status:      FindingOpen,
			CreatedAt:   now,
		})
		return true
	})
	return findings
}

// severityFor implements the total mapping:
// critical item → critical; non-critical pass/fail fail or rating <= 1 →
// high; rating = 2 → medium; every other qualifying case → low.
func severityFor(item *checklist.Item, resp *session.Value, is scoring.ItemScore) id.Severity {
	if item.Critical {
		return id.SeverityCritical
	}
	switch item.Type {
	case checklist.TypePassFail:
		if is.FailReason == scoring.ReasonFailResponse {
			return id.SeverityHigh
		}
	case checklist.TypeRating:
		if resp != nil {
			if resp.Rating <= 1 {
				return id.SeverityHigh
			}
			if resp.Rating == 2 {
				return id.SeverityMedium
			}
		}
	}
	return id.SeverityLow
}

func describe(item *checklist.Item, note string) string {
	if note != "" {
		return item.Text + " - " + note
	}
	return item.Text
}

// findingCode derives a stable, human-readable code from the audit id and
// the finding's position, so regenerating from identical inputs yields
// identical codes.
func findingCode(auditID id.AuditID, seq int) string {
	return fmt.Sprintf("FND-%s-%02d", shortID(uuid.UUID(auditID)), seq)
}

func capaCode(auditID id.AuditID, seq int) string {
	return fmt.Sprintf("CAPA-%s-%02d", shortID(uuid.UUID(auditID)), seq)
}

func shortID(u uuid.UUID) string {
	s := u.String()
	return s[:8]
}

// GenerateCAPAs creates one CAPA per finding, in the same transaction as the
// findings themselves. Priority mirrors severity; the due date is the
// submission time plus the policy window; ownership defaults to unassigned
// unless a routing rule supplies one.
func GenerateCAPAs(findings []Finding, policy DuePolicy, router Router, now time.Time) []CAPA {
	capas := make([]CAPA, 0, len(findings))
	for i, f := range findings {
		capa := CAPA{
			ID:          id.CAPAID(uuid.New()),
			Code:        capaCode(f.AuditID, i+1),
			FindingID:   f.ID,
			AuditID:     f.AuditID,
			Priority:    f.Severity,
			Description: f.Description,
			DueDate:     now.Add(policy.Window(f.Severity)),
			Status:      CAPAOpen,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if router != nil {
			if owner, ok := router.RouteCAPA(f.AuditID, f.Severity); ok {
				capa.AssignedTo = owner
			}
		}
		capas = append(capas, capa)
	}
	return capas
}
