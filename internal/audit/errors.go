package audit

import (
	"fmt"
	"strings"

	id "aegis/pkg/domain"
)

// CAPAsNotClosedError blocks an audit from reaching approved while any of its
// corrective actions is still outstanding. Recoverable: close the listed
// CAPAs and approve again.
type CAPAsNotClosedError struct {
	AuditID id.AuditID
	Open    []id.CAPAID
}

func (e *CAPAsNotClosedError) Error() string {
	ids := make([]string, len(e.Open))
	for i, c := range e.Open {
		ids[i] = c.String()
	}
	return fmt.Sprintf("audit %s has %d unclosed capas: %s",
		e.AuditID, len(e.Open), strings.Join(ids, ", "))
}
