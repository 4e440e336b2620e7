package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"aegis/internal/checklist"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// Postgres persists templates with the section tree as a JSONB document.
// Templates are read whole and written whole; nothing queries inside the
// tree, so a document column beats a three-table join.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed template store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Put(ctx context.Context, tmpl *checklist.Template) error {
	sections, err := json.Marshal(tmpl.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	query := `
		INSERT INTO templates (id, code, name, entity_type, status, sections, pass_threshold, critical_fail_overrides, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			entity_type = EXCLUDED.entity_type,
			status = EXCLUDED.status,
			sections = EXCLUDED.sections,
			pass_threshold = EXCLUDED.pass_threshold,
			critical_fail_overrides = EXCLUDED.critical_fail_overrides,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(tmpl.ID),
		tmpl.Code,
		tmpl.Name,
		string(tmpl.EntityType),
		string(tmpl.Status),
		sections,
		tmpl.Scoring.PassThreshold,
		tmpl.Scoring.CriticalFailOverrides,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("put template: %w", err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, templateID id.TemplateID) (*checklist.Template, error) {
	query := `
		SELECT id, code, name, entity_type, status, sections, pass_threshold, critical_fail_overrides, created_at, updated_at
		FROM templates
		WHERE id = $1
	`
	tmpl, err := scanTemplate(s.db.QueryRowContext(ctx, query, uuid.UUID(templateID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get template: %w", err)
	}
	return tmpl, nil
}

func (s *Postgres) ListActive(ctx context.Context, entityType id.EntityType) ([]*checklist.Template, error) {
	query := `
		SELECT id, code, name, entity_type, status, sections, pass_threshold, critical_fail_overrides, created_at, updated_at
		FROM templates
		WHERE status = 'active' AND entity_type = $1
		ORDER BY code
	`
	rows, err := s.db.QueryContext(ctx, query, string(entityType))
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var out []*checklist.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("list active templates: %w", err)
		}
		out = append(out, tmpl)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*checklist.Template, error) {
	var (
		tmpl     checklist.Template
		rawID    uuid.UUID
		entity   string
		status   string
		sections []byte
	)
	err := row.Scan(
		&rawID,
		&tmpl.Code,
		&tmpl.Name,
		&entity,
		&status,
		&sections,
		&tmpl.Scoring.PassThreshold,
		&tmpl.Scoring.CriticalFailOverrides,
		&tmpl.CreatedAt,
		&tmpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(sections, &tmpl.Sections); err != nil {
		return nil, fmt.Errorf("unmarshal sections: %w", err)
	}
	tmpl.ID = id.TemplateID(rawID)
	tmpl.EntityType = id.EntityType(entity)
	tmpl.Status = checklist.TemplateStatus(status)
	return &tmpl, nil
}
