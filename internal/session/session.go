package session

import (
	"strings"

	"aegis/internal/checklist"
	"aegis/pkg/derrors"
	id "aegis/pkg/domain"
)

// Entry is everything recorded against one item: the current response (nil
// until answered), attached evidence, and an optional manual finding note.
type Entry struct {
	Response *Value     `json:"response,omitempty"`
	Evidence []Evidence `json:"evidence,omitempty"`
	Note     string     `json:"note,omitempty"`
}

// CompletionStats summarizes how much of the checklist is answered.
type CompletionStats struct {
	Answered   int     `json:"answered"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Session is the mutable response state for one audit instance. It is owned
// by a single auditor's UI session; no internal locking. The template is held
// only to type-check mutations; the session never alters it.
type Session struct {
	template *checklist.Template
	entries  map[id.ItemID]*Entry
}

// New creates an empty session over an activated template.
func New(tmpl *checklist.Template) *Session {
	return &Session{
		template: tmpl,
		entries:  make(map[id.ItemID]*Entry),
	}
}

// Template returns the template this session answers.
func (s *Session) Template() *checklist.Template { return s.template }

// Entry returns the recorded state for an item, or nil when untouched.
func (s *Session) Entry(itemID id.ItemID) *Entry {
	return s.entries[itemID]
}

// Response returns the item's current response, or nil when unanswered.
func (s *Session) Response(itemID id.ItemID) *Value {
	if e := s.entries[itemID]; e != nil {
		return e.Response
	}
	return nil
}

// SetResponse replaces the item's response. A value whose shape does not
// match the item's declared type is rejected with invalid_input and leaves
// the session unchanged.
func (s *Session) SetResponse(itemID id.ItemID, value Value) error {
	item, _ := s.template.FindItem(itemID)
	if item == nil {
		return derrors.Newf(derrors.CodeNotFound, "item %q not in template", itemID)
	}
	if value.Type != item.Type {
		return derrors.Newf(derrors.CodeInvalidInput,
			"item %q expects %s response, got %s", itemID, item.Type, value.Type)
	}

	switch item.Type {
	case checklist.TypePassFail:
		if value.PassFail != Pass && value.PassFail != Fail {
			return derrors.Newf(derrors.CodeInvalidInput, "item %q: pass/fail value must be pass or fail", itemID)
		}
	case checklist.TypeRating:
		if value.Rating < 1 || value.Rating > 5 {
			return derrors.Newf(derrors.CodeInvalidInput, "item %q: rating %d outside 1-5", itemID, value.Rating)
		}
	case checklist.TypeChecklist:
		for key := range value.Checklist {
			if !hasSubItem(item, key) {
				return derrors.Newf(derrors.CodeInvalidInput, "item %q: unknown sub-item %q", itemID, key)
			}
		}
	}

	v := value
	s.entry(itemID).Response = &v
	return nil
}

// ClearResponse removes the item's response, keeping evidence and note.
func (s *Session) ClearResponse(itemID id.ItemID) {
	if e := s.entries[itemID]; e != nil {
		e.Response = nil
	}
}

// AddEvidence attaches evidence to an item.
func (s *Session) AddEvidence(itemID id.ItemID, ev Evidence) error {
	if item, _ := s.template.FindItem(itemID); item == nil {
		return derrors.Newf(derrors.CodeNotFound, "item %q not in template", itemID)
	}
	e := s.entry(itemID)
	e.Evidence = append(e.Evidence, ev)
	return nil
}

// RemoveEvidence drops the attachment at index.
func (s *Session) RemoveEvidence(itemID id.ItemID, index int) error {
	e := s.entries[itemID]
	if e == nil || index < 0 || index >= len(e.Evidence) {
		return derrors.Newf(derrors.CodeInvalidInput, "item %q: no evidence at index %d", itemID, index)
	}
	e.Evidence = append(e.Evidence[:index], e.Evidence[index+1:]...)
	return nil
}

// EvidenceCount returns how many attachments the item carries, pending or
// stored alike.
func (s *Session) EvidenceCount(itemID id.ItemID) int {
	if e := s.entries[itemID]; e != nil {
		return len(e.Evidence)
	}
	return 0
}

// SetNote records a manual finding note on the item.
func (s *Session) SetNote(itemID id.ItemID, note string) error {
	if item, _ := s.template.FindItem(itemID); item == nil {
		return derrors.Newf(derrors.CodeNotFound, "item %q not in template", itemID)
	}
	s.entry(itemID).Note = strings.TrimSpace(note)
	return nil
}

// Note returns the manual finding note for an item.
func (s *Session) Note(itemID id.ItemID) string {
	if e := s.entries[itemID]; e != nil {
		return e.Note
	}
	return ""
}

// Answered reports whether the item counts as answered: it has a response
// and, when evidence is required, enough attachments to satisfy the
// requirement.
func (s *Session) Answered(item *checklist.Item) bool {
	e := s.entries[item.ID]
	if e == nil || e.Response == nil {
		return false
	}
	if item.Type == checklist.TypeText && strings.TrimSpace(e.Response.Text) == "" {
		return false
	}
	return len(e.Evidence) >= item.Evidence.MinCount()
}

// CompletionStats counts answered items across the whole checklist. Optional
// items count toward the total; they are exempt from the submission gate,
// not from progress display.
func (s *Session) CompletionStats() CompletionStats {
	stats := CompletionStats{}
	s.template.Walk(func(_ *checklist.Section, item *checklist.Item) bool {
		stats.Total++
		if s.Answered(item) {
			stats.Answered++
		}
		return true
	})
	if stats.Total > 0 {
		stats.Percentage = float64(stats.Answered) / float64(stats.Total) * 100
	}
	return stats
}

// Snapshot exports the session entries for draft persistence. The map is a
// deep copy; mutating the session afterwards does not alter the snapshot.
func (s *Session) Snapshot() map[id.ItemID]Entry {
	out := make(map[id.ItemID]Entry, len(s.entries))
	for itemID, e := range s.entries {
		cp := Entry{Note: e.Note}
		if e.Response != nil {
			v := *e.Response
			if v.Checklist != nil {
				checked := make(map[string]bool, len(v.Checklist))
				for k, b := range v.Checklist {
					checked[k] = b
				}
				v.Checklist = checked
			}
			cp.Response = &v
		}
		cp.Evidence = append([]Evidence(nil), e.Evidence...)
		out[itemID] = cp
	}
	return out
}

// Restore rebuilds a session from a draft snapshot.
func Restore(tmpl *checklist.Template, entries map[id.ItemID]Entry) *Session {
	s := New(tmpl)
	for itemID, e := range entries {
		cp := e
		s.entries[itemID] = &cp
	}
	return s
}

func (s *Session) entry(itemID id.ItemID) *Entry {
	e := s.entries[itemID]
	if e == nil {
		e = &Entry{}
		s.entries[itemID] = e
	}
	return e
}

func hasSubItem(item *checklist.Item, key string) bool {
	for _, sub := range item.SubItems {
		if sub.Key == key {
			return true
		}
	}
	return false
}
