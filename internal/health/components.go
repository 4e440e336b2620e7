package health

import (
	"fmt"
	"math"
	"time"

	id "aegis/pkg/domain"
)

// Weights maps component keys to their share of the overall score. Weights
// for one entity type sum to 1.0.
type Weights map[ComponentKey]float64

// weightTolerance absorbs floating error when checking the sum.
const weightTolerance = 0.001

// Validate rejects weight sets that do not sum to 1.0.
func (w Weights) Validate() error {
	var sum float64
	for _, weight := range w {
		if weight < 0 {
			return fmt.Errorf("negative component weight %.3f", weight)
		}
		sum += weight
	}
	if math.Abs(sum-1.0) > weightTolerance {
		return fmt.Errorf("component weights sum to %.3f, want 1.0", sum)
	}
	return nil
}

// DefaultWeights is the per-entity-type component weighting. Outlets and
// kitchens are dominated by audit outcomes; suppliers lean harder on
// certification and incident history because they are audited less often.
func DefaultWeights() map[id.EntityType]Weights {
	return map[id.EntityType]Weights{
		id.EntityOutlet: {
			ComponentLatestAudit:      0.45,
			ComponentAuditHistory:     0.25,
			ComponentCAPAPressure:     0.15,
			ComponentIncidentPressure: 0.15,
		},
		id.EntityCentralKitchen: {
			ComponentLatestAudit:      0.40,
			ComponentAuditHistory:     0.25,
			ComponentCAPAPressure:     0.15,
			ComponentIncidentPressure: 0.10,
			ComponentCertification:    0.10,
		},
		id.EntitySupplier: {
			ComponentLatestAudit:      0.40,
			ComponentCertification:    0.30,
			ComponentIncidentPressure: 0.30,
		},
	}
}

// historyHalfLife controls recency decay over past audit scores: an audit
// this many days old counts half as much as one from today.
const historyHalfLife = 90 * 24 * time.Hour

// DecayedHistory computes the recency-weighted mean of past audit scores.
// Scores arrive newest first with their completion times.
func DecayedHistory(scores []float64, completedAt []time.Time, now time.Time) float64 {
	var weightedSum, weightSum float64
	for i, score := range scores {
		age := now.Sub(completedAt[i])
		if age < 0 {
			age = 0
		}
		w := math.Exp2(-age.Hours() / historyHalfLife.Hours())
		weightedSum += score * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

// PressureScore maps an open-item count to 0-100 with a linear falloff:
// zero open items is 100, each one costs perItem points, floored at 0.
func PressureScore(open int, perItem float64) float64 {
	score := 100 - float64(open)*perItem
	if score < 0 {
		return 0
	}
	return score
}

// CertificationScore maps certification expiry proximity to 0-100. A missing
// certification scores 0; one expiring beyond the horizon scores 100; inside
// the horizon the score falls linearly to 0 at expiry.
func CertificationScore(expiresAt *time.Time, now time.Time, horizon time.Duration) float64 {
	if expiresAt == nil {
		return 0
	}
	remaining := expiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	if remaining >= horizon {
		return 100
	}
	return remaining.Hours() / horizon.Hours() * 100
}
