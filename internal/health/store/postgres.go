package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aegis/internal/health"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// Postgres persists health records, one row per entity, component map as
// JSONB. The upsert replaces the row whole, matching the aggregator's
// all-or-nothing per-entity contract.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed health store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Upsert(ctx context.Context, score health.Score) error {
	components, err := json.Marshal(score.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	query := `
		INSERT INTO health_scores (entity_type, entity_id, overall, components, label, color_band, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (entity_type, entity_id) DO UPDATE SET
			overall = EXCLUDED.overall,
			components = EXCLUDED.components,
			label = EXCLUDED.label,
			color_band = EXCLUDED.color_band,
			calculated_at = EXCLUDED.calculated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		string(score.EntityType), uuid.UUID(score.EntityID),
		score.Overall, components, score.Label, score.ColorBand, score.CalculatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert health score: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, ref id.EntityRef) (*health.Score, error) {
	var (
		score      health.Score
		entityID   uuid.UUID
		entityType string
		components []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_type, entity_id, overall, components, label, color_band, calculated_at
		FROM health_scores
		WHERE entity_type = $1 AND entity_id = $2
	`, string(ref.Type), uuid.UUID(ref.ID)).Scan(
		&entityType, &entityID, &score.Overall, &components,
		&score.Label, &score.ColorBand, &score.CalculatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get health score: %w", err)
	}
	if err := json.Unmarshal(components, &score.Components); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	score.EntityType = id.EntityType(entityType)
	score.EntityID = id.EntityID(entityID)
	return &score, nil
}
