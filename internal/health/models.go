// Package health rolls audit history (and adjacent pressure signals) into
// one composite 0-100 score per entity, recomputed as an idempotent,
// time-gated batch over the whole fleet.
package health

import (
	"math"
	"time"

	id "aegis/pkg/domain"
)

// ComponentKey names one weighted sub-score of an entity's health.
type ComponentKey string

const (
	// ComponentLatestAudit is the most recent completed audit's score.
	ComponentLatestAudit ComponentKey = "latest_audit"
	// ComponentAuditHistory is a recency-decayed mean over past audits.
	ComponentAuditHistory ComponentKey = "audit_history"
	// ComponentCAPAPressure falls as unclosed corrective actions pile up.
	ComponentCAPAPressure ComponentKey = "capa_pressure"
	// ComponentIncidentPressure falls with open incidents from the incident
	// domain.
	ComponentIncidentPressure ComponentKey = "incident_pressure"
	// ComponentCertification tracks certification expiry proximity.
	ComponentCertification ComponentKey = "certification"
)

// Score is the current health record for one entity. The aggregator
// overwrites it whole; input history stays in the audit tables.
type Score struct {
	EntityType   id.EntityType            `json:"entity_type"`
	EntityID     id.EntityID              `json:"entity_id"`
	Overall      float64                  `json:"overall"`
	Components   map[ComponentKey]float64 `json:"components"`
	Label        string                   `json:"label"`
	ColorBand    string                   `json:"color_band"`
	CalculatedAt time.Time                `json:"calculated_at"`
}

// Band is a labeled score range for display and risk ranking.
type Band struct {
	Label string
	Color string
}

// BandFor maps any 0-100 score to its band. The bands are fixed, exact, and
// total-covering: [85,100] Excellent, [70,85) Good, [50,70) Needs
// Improvement, [0,50) Critical.
func BandFor(score float64) Band {
	switch {
	case score >= 85:
		return Band{Label: "Excellent", Color: "green"}
	case score >= 70:
		return Band{Label: "Good", Color: "yellow"}
	case score >= 50:
		return Band{Label: "Needs Improvement", Color: "orange"}
	default:
		return Band{Label: "Critical", Color: "red"}
	}
}

// NoDataBand distinguishes an entity with no audit history from one scoring
// an actual zero. A fresh entity is "No data", never "Critical".
func NoDataBand() Band {
	return Band{Label: "No data", Color: "gray"}
}

// Round truncates the record to its published precision: one decimal on the
// overall and every component. Rounding at the edge keeps the stored record
// deterministic across reruns.
func (s *Score) Round() {
	s.Overall = round1(s.Overall)
	for k, v := range s.Components {
		s.Components[k] = round1(v)
	}
}

// round1 rounds to one decimal, the record's published precision.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
