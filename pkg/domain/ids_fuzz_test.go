//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseAuditID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParseAuditID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE audits;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))
	f.Add("550e8400-e29b-41d4-a716-446655440000\x00suffix")

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseAuditID(input)

		// A valid ID must round-trip through its string form.
		if err == nil {
			roundTrip, err2 := ParseAuditID(id.String())
			if err2 != nil {
				t.Errorf("Valid ID failed round-trip: %v", err2)
			}
			if roundTrip != id {
				t.Error("Round-trip changed ID value")
			}
		}

		// Non-UTF8 input must be rejected.
		if !utf8.ValidString(input) && err == nil {
			t.Error("Non-UTF8 input was accepted")
		}
	})
}

// FuzzParseAllIDs ensures all ID types share the same validation behavior;
// a type that accepted inputs the others rejected would be a trust-boundary
// inconsistency.
func FuzzParseAllIDs(f *testing.F) {
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("")
	f.Add("invalid")

	f.Fuzz(func(t *testing.T, input string) {
		_, errTemplate := ParseTemplateID(input)
		_, errAudit := ParseAuditID(input)
		_, errFinding := ParseFindingID(input)
		_, errCAPA := ParseCAPAID(input)
		_, errEntity := ParseEntityID(input)
		_, errAuditor := ParseAuditorID(input)
		_, errUser := ParseUserID(input)

		errs := []error{errTemplate, errAudit, errFinding, errCAPA, errEntity, errAuditor, errUser}
		accepted := 0
		for _, err := range errs {
			if err == nil {
				accepted++
			}
		}
		if accepted != 0 && accepted != len(errs) {
			t.Errorf("Inconsistent parsing across ID types: %d of %d accepted", accepted, len(errs))
		}
	})
}
