package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/checklist"
	"aegis/internal/session"
	id "aegis/pkg/domain"
)

func gateTemplate() *checklist.Template {
	return &checklist.Template{
		Code: "TPL-G", Name: "Gate Fixture", EntityType: id.EntityOutlet,
		Scoring: checklist.ScoringConfig{PassThreshold: 85, CriticalFailOverrides: true},
		Sections: []checklist.Section{
			{ID: "first", Order: 1, Name: "First", Weight: 50, Items: []checklist.Item{
				{ID: "a", Order: 1, Text: "A", Type: checklist.TypePassFail, Evidence: checklist.EvidenceNone},
				{ID: "b", Order: 2, Text: "B", Type: checklist.TypePhoto, Evidence: checklist.EvidenceRequired2},
			}},
			{ID: "second", Order: 2, Name: "Second", Weight: 50, Items: []checklist.Item{
				{ID: "c", Order: 1, Text: "C", Type: checklist.TypeText, Evidence: checklist.EvidenceNone, Optional: true},
				{ID: "d", Order: 2, Text: "D", Type: checklist.TypePassFail, Evidence: checklist.EvidenceNone},
			}},
		},
	}
}

func TestCheckSubmittable(t *testing.T) {
	t.Run("reports first offender in checklist order", func(t *testing.T) {
		tmpl := gateTemplate()
		sess := session.New(tmpl)
		// Both a and d are unanswered; a comes first.
		err := CheckSubmittable(tmpl, sess)
		var incomplete *IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, id.ItemID("a"), incomplete.ItemID)
		assert.Equal(t, IncompleteUnanswered, incomplete.Reason)
	})

	t.Run("reports unmet evidence with counts", func(t *testing.T) {
		tmpl := gateTemplate()
		sess := session.New(tmpl)
		require.NoError(t, sess.SetResponse("a", session.PassFailValue(session.Pass)))
		require.NoError(t, sess.SetResponse("b", session.PhotoValue()))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidencePending, Ref: "local/1"}))
		require.NoError(t, sess.SetResponse("d", session.PassFailValue(session.Pass)))

		err := CheckSubmittable(tmpl, sess)
		var incomplete *IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, id.ItemID("b"), incomplete.ItemID)
		assert.Equal(t, IncompleteEvidence, incomplete.Reason)
		assert.Equal(t, 2, incomplete.Required)
		assert.Equal(t, 1, incomplete.Attached)
	})

	t.Run("optional items are exempt when unanswered", func(t *testing.T) {
		tmpl := gateTemplate()
		sess := session.New(tmpl)
		require.NoError(t, sess.SetResponse("a", session.PassFailValue(session.Pass)))
		require.NoError(t, sess.SetResponse("b", session.PhotoValue()))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidenceStored, Ref: "obj/1"}))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidenceStored, Ref: "obj/2"}))
		require.NoError(t, sess.SetResponse("d", session.PassFailValue(session.Fail)))

		// c is optional and unanswered; gate passes.
		require.NoError(t, CheckSubmittable(tmpl, sess))
	})

	t.Run("whitespace text on a required item counts as unanswered", func(t *testing.T) {
		tmpl := gateTemplate()
		tmpl.Sections[1].Items[0].Optional = false
		sess := session.New(tmpl)
		require.NoError(t, sess.SetResponse("a", session.PassFailValue(session.Pass)))
		require.NoError(t, sess.SetResponse("b", session.PhotoValue()))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidenceStored, Ref: "obj/1"}))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidenceStored, Ref: "obj/2"}))
		require.NoError(t, sess.SetResponse("c", session.TextValue("   ")))
		require.NoError(t, sess.SetResponse("d", session.PassFailValue(session.Pass)))

		err := CheckSubmittable(tmpl, sess)
		var incomplete *IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, id.ItemID("c"), incomplete.ItemID)
		assert.Equal(t, IncompleteUnanswered, incomplete.Reason)
	})

	t.Run("answered optional item must still meet evidence requirement", func(t *testing.T) {
		tmpl := gateTemplate()
		tmpl.Sections[0].Items[1].Optional = true
		sess := session.New(tmpl)
		require.NoError(t, sess.SetResponse("a", session.PassFailValue(session.Pass)))
		require.NoError(t, sess.SetResponse("b", session.PhotoValue())) // answered, 0 of 2 attachments
		require.NoError(t, sess.SetResponse("d", session.PassFailValue(session.Pass)))

		err := CheckSubmittable(tmpl, sess)
		var incomplete *IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, id.ItemID("b"), incomplete.ItemID)
		assert.Equal(t, IncompleteEvidence, incomplete.Reason)
	})

	t.Run("resubmit succeeds after the offender is fixed", func(t *testing.T) {
		tmpl := gateTemplate()
		sess := session.New(tmpl)
		require.NoError(t, sess.SetResponse("b", session.PhotoValue()))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidenceStored, Ref: "obj/1"}))
		require.NoError(t, sess.AddEvidence("b", session.Evidence{State: session.EvidenceStored, Ref: "obj/2"}))
		require.NoError(t, sess.SetResponse("d", session.PassFailValue(session.Pass)))

		err := CheckSubmittable(tmpl, sess)
		var incomplete *IncompleteError
		require.ErrorAs(t, err, &incomplete)
		assert.Equal(t, id.ItemID("a"), incomplete.ItemID)

		require.NoError(t, sess.SetResponse("a", session.PassFailValue(session.Pass)))
		require.NoError(t, CheckSubmittable(tmpl, sess))
	})
}
