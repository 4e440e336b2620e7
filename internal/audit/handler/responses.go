package handler

import (
	"aegis/internal/audit"
	"aegis/internal/audit/service"
	"aegis/internal/checklist"
	"aegis/internal/finding"
	"aegis/internal/scoring"
	"aegis/internal/session"
)

// AuditResponse is the wire shape of an audit instance. The domain struct
// already carries its JSON contract; the alias pins the handler to it.
type AuditResponse = audit.Audit

// SubmitResponse returns everything derived at submission in one payload so
// the client can render the score sheet without follow-up reads.
type SubmitResponse struct {
	Audit    *audit.Audit      `json:"audit"`
	Score    scoring.Result    `json:"score"`
	Findings []finding.Finding `json:"findings"`
	CAPAs    []finding.CAPA    `json:"capas"`
}

// FromSubmitResult maps the service result to the wire payload.
func FromSubmitResult(result *service.SubmitResult) SubmitResponse {
	return SubmitResponse{
		Audit:    result.Audit,
		Score:    result.Score,
		Findings: result.Findings,
		CAPAs:    result.CAPAs,
	}
}

// DraftResponse returns the stored response set with completion progress.
type DraftResponse struct {
	Responses  []ResponseEntry         `json:"responses"`
	Completion session.CompletionStats `json:"completion"`
}

// FromSession maps a session back to the wire response set, in template
// checklist order so clients render deterministically.
func FromSession(sess *session.Session) DraftResponse {
	resp := DraftResponse{
		Responses:  []ResponseEntry{},
		Completion: sess.CompletionStats(),
	}
	sess.Template().Walk(func(_ *checklist.Section, item *checklist.Item) bool {
		e := sess.Entry(item.ID)
		if e == nil {
			return true
		}
		entry := ResponseEntry{ItemID: string(item.ID), Note: e.Note}
		if e.Response != nil {
			entry.Response = &ResponseValue{
				Type:      string(e.Response.Type),
				PassFail:  string(e.Response.PassFail),
				Rating:    e.Response.Rating,
				Numeric:   e.Response.Numeric,
				Text:      e.Response.Text,
				Checklist: e.Response.Checklist,
			}
		}
		for _, ev := range e.Evidence {
			entry.Evidence = append(entry.Evidence, EvidencePayload{
				State:    string(ev.State),
				Ref:      ev.Ref,
				FileName: ev.FileName,
				MimeType: ev.MimeType,
			})
		}
		resp.Responses = append(resp.Responses, entry)
		return true
	})
	return resp
}

// MarkOverdueResponse reports an overdue sweep outcome.
type MarkOverdueResponse struct {
	Marked int `json:"marked"`
}
