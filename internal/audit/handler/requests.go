package handler

import (
	"time"

	"aegis/internal/checklist"
	"aegis/internal/session"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
)

// ScheduleRequest creates an audit instance.
type ScheduleRequest struct {
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	TemplateID   string    `json:"template_id"`
	AuditorID    string    `json:"auditor_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

func (r ScheduleRequest) Parse() (id.EntityRef, id.TemplateID, id.AuditorID, error) {
	entityType := id.EntityType(r.EntityType)
	if !entityType.IsValid() {
		return id.EntityRef{}, id.TemplateID{}, id.AuditorID{},
			derrors.Newf(derrors.CodeInvalidInput, "unknown entity type %q", r.EntityType)
	}
	entityID, err := id.ParseEntityID(r.EntityID)
	if err != nil {
		return id.EntityRef{}, id.TemplateID{}, id.AuditorID{}, err
	}
	templateID, err := id.ParseTemplateID(r.TemplateID)
	if err != nil {
		return id.EntityRef{}, id.TemplateID{}, id.AuditorID{}, err
	}
	auditorID, err := id.ParseAuditorID(r.AuditorID)
	if err != nil {
		return id.EntityRef{}, id.TemplateID{}, id.AuditorID{}, err
	}
	if r.ScheduledFor.IsZero() {
		return id.EntityRef{}, id.TemplateID{}, id.AuditorID{},
			derrors.New(derrors.CodeInvalidInput, "scheduled_for is required")
	}
	return id.EntityRef{Type: entityType, ID: entityID}, templateID, auditorID, nil
}

// ResponseValue is the wire shape of one item response. Type selects which
// of the remaining fields is read.
type ResponseValue struct {
	Type      string          `json:"type"`
	PassFail  string          `json:"pass_fail,omitempty"`
	Rating    int             `json:"rating,omitempty"`
	Numeric   float64         `json:"numeric,omitempty"`
	Text      string          `json:"text,omitempty"`
	Checklist map[string]bool `json:"checklist,omitempty"`
}

// EvidencePayload references one attachment on an item.
type EvidencePayload struct {
	State    string `json:"state"`
	Ref      string `json:"ref"`
	FileName string `json:"file_name,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ResponseEntry is the full recorded state for one item.
type ResponseEntry struct {
	ItemID   string            `json:"item_id"`
	Response *ResponseValue    `json:"response,omitempty"`
	Evidence []EvidencePayload `json:"evidence,omitempty"`
	Note     string            `json:"note,omitempty"`
}

// ResponsesRequest carries the complete response set for a draft save or a
// submission. It replaces the session whole; partial patches are a client
// concern.
type ResponsesRequest struct {
	Responses []ResponseEntry `json:"responses"`
}

// Apply writes the payload onto the session, surfacing the first type
// mismatch or unknown item as-is.
func (r ResponsesRequest) Apply(sess *session.Session) error {
	for _, entry := range r.Responses {
		itemID := id.ItemID(entry.ItemID)
		if entry.Response != nil {
			value, err := entry.Response.toValue()
			if err != nil {
				return err
			}
			if err := sess.SetResponse(itemID, value); err != nil {
				return err
			}
		}
		for _, ev := range entry.Evidence {
			state := session.EvidenceState(ev.State)
			if state != session.EvidenceStored && state != session.EvidencePending {
				return derrors.Newf(derrors.CodeInvalidInput, "item %q: unknown evidence state %q", entry.ItemID, ev.State)
			}
			if err := sess.AddEvidence(itemID, session.Evidence{
				State:    state,
				Ref:      ev.Ref,
				FileName: ev.FileName,
				MimeType: ev.MimeType,
			}); err != nil {
				return err
			}
		}
		if entry.Note != "" {
			if err := sess.SetNote(itemID, entry.Note); err != nil {
				return err
			}
		}
	}
	return nil
}

func (v ResponseValue) toValue() (session.Value, error) {
	switch checklist.ResponseType(v.Type) {
	case checklist.TypePassFail:
		return session.PassFailValue(session.PassFail(v.PassFail)), nil
	case checklist.TypeRating:
		return session.RatingValue(v.Rating), nil
	case checklist.TypeNumeric:
		return session.NumericValue(v.Numeric), nil
	case checklist.TypePhoto:
		return session.PhotoValue(), nil
	case checklist.TypeText:
		return session.TextValue(v.Text), nil
	case checklist.TypeChecklist:
		return session.ChecklistValue(v.Checklist), nil
	default:
		return session.Value{}, derrors.Newf(derrors.CodeInvalidInput, "unknown response type %q", v.Type)
	}
}

// TransitionCAPARequest moves a CAPA along its lifecycle.
type TransitionCAPARequest struct {
	Status string `json:"status"`
}

// AssignCAPARequest sets the CAPA owner.
type AssignCAPARequest struct {
	UserID string `json:"user_id"`
}
