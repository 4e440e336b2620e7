package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aegis/internal/audit"
	"aegis/internal/finding"
	"aegis/internal/session"
	id "aegis/pkg/domain"
	"aegis/pkg/platform/sentinel"

	"github.com/google/uuid"
)

// Postgres persists audits, findings, CAPAs, and drafts. This store is pure
// I/O; transition rules and derivation logic belong to the domain packages.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const auditColumns = `id, code, entity_type, entity_id, template_id, auditor_id, status,
	scheduled_for, started_at, completed_at, overall, pass, critical_fail, created_at, updated_at`

func (s *Postgres) CreateAudit(ctx context.Context, a *audit.Audit) error {
	query := `
		INSERT INTO audits (` + auditColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query, auditArgs(a)...)
	if err != nil {
		return fmt.Errorf("create audit: %w", err)
	}
	return nil
}

func (s *Postgres) GetAudit(ctx context.Context, auditID id.AuditID) (*audit.Audit, error) {
	query := `SELECT ` + auditColumns + ` FROM audits WHERE id = $1`
	a, err := scanAudit(s.db.QueryRowContext(ctx, query, uuid.UUID(auditID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get audit: %w", err)
	}
	return a, nil
}

// UpdateAudit writes the audit guarded by its previous status, so a stale
// writer loses instead of clobbering a concurrent transition.
func (s *Postgres) UpdateAudit(ctx context.Context, a *audit.Audit) error {
	query := `
		UPDATE audits SET
			status = $2, started_at = $3, completed_at = $4,
			overall = $5, pass = $6, critical_fail = $7, updated_at = $8
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(a.ID), string(a.Status), a.StartedAt, a.CompletedAt,
		a.Overall, a.Pass, a.CriticalFail, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update audit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListCompletedByEntity(ctx context.Context, ref id.EntityRef) ([]*audit.Audit, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audits
		WHERE entity_type = $1 AND entity_id = $2
		  AND status IN ('submitted', 'pending_verification', 'approved')
		  AND completed_at IS NOT NULL
		ORDER BY completed_at DESC
	`
	return s.listAudits(ctx, query, string(ref.Type), uuid.UUID(ref.ID))
}

func (s *Postgres) ListScheduledBefore(ctx context.Context, cutoff time.Time) ([]*audit.Audit, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM audits
		WHERE status = 'scheduled' AND scheduled_for < $1
		ORDER BY scheduled_for
	`
	return s.listAudits(ctx, query, cutoff)
}

func (s *Postgres) listAudits(ctx context.Context, query string, args ...any) ([]*audit.Audit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []*audit.Audit
	for rows.Next() {
		a, err := scanAudit(rows)
		if err != nil {
			return nil, fmt.Errorf("list audits: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Postgres) SaveDraft(ctx context.Context, auditID id.AuditID, entries map[id.ItemID]session.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}
	query := `
		INSERT INTO audit_drafts (audit_id, entries, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (audit_id) DO UPDATE SET
			entries = EXCLUDED.entries,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, uuid.UUID(auditID), payload); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

func (s *Postgres) GetDraft(ctx context.Context, auditID id.AuditID) (map[id.ItemID]session.Entry, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT entries FROM audit_drafts WHERE audit_id = $1`, uuid.UUID(auditID),
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	var entries map[id.ItemID]session.Entry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return entries, nil
}

// CommitSubmission writes the scored audit, its findings, and their CAPAs in
// one transaction and removes the draft. Either the whole result set lands or
// none of it does.
func (s *Postgres) CommitSubmission(ctx context.Context, a *audit.Audit, findings []finding.Finding, capas []finding.CAPA) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE audits SET
			status = $2, started_at = $3, completed_at = $4,
			overall = $5, pass = $6, critical_fail = $7, updated_at = $8
		WHERE id = $1 AND status = 'in_progress'
	`,
		uuid.UUID(a.ID), string(a.Status), a.StartedAt, a.CompletedAt,
		a.Overall, a.Pass, a.CriticalFail, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("commit submission: update audit: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrInvalidState
	}

	for _, f := range findings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO findings (id, code, audit_id, section_id, section_name, item_id, severity, description, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			uuid.UUID(f.ID), f.Code, uuid.UUID(f.AuditID), string(f.SectionID), f.SectionName,
			string(f.ItemID), string(f.Severity), f.Description, string(f.Status), f.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("commit submission: insert finding: %w", err)
		}
	}

	for _, c := range capas {
		var assignedTo any
		if c.AssignedTo != (id.UserID{}) {
			assignedTo = uuid.UUID(c.AssignedTo)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capas (id, code, finding_id, audit_id, priority, description, assigned_to, due_date, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			uuid.UUID(c.ID), c.Code, uuid.UUID(c.FindingID), uuid.UUID(c.AuditID), string(c.Priority),
			c.Description, assignedTo, c.DueDate, string(c.Status), c.CreatedAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("commit submission: insert capa: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM audit_drafts WHERE audit_id = $1`, uuid.UUID(a.ID)); err != nil {
		return fmt.Errorf("commit submission: drop draft: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}

func (s *Postgres) ListFindings(ctx context.Context, auditID id.AuditID) ([]finding.Finding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, audit_id, section_id, section_name, item_id, severity, description, status, created_at
		FROM findings
		WHERE audit_id = $1
		ORDER BY code
	`, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("list findings: %w", err)
	}
	defer rows.Close()

	var out []finding.Finding
	for rows.Next() {
		var (
			f                finding.Finding
			fid, aid         uuid.UUID
			secID, itemID    string
			severity, status string
		)
		err := rows.Scan(&fid, &f.Code, &aid, &secID, &f.SectionName, &itemID, &severity, &f.Description, &status, &f.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("list findings: %w", err)
		}
		f.ID = id.FindingID(fid)
		f.AuditID = id.AuditID(aid)
		f.SectionID = id.SectionID(secID)
		f.ItemID = id.ItemID(itemID)
		f.Severity = id.Severity(severity)
		f.Status = finding.FindingStatus(status)
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Postgres) GetCAPA(ctx context.Context, capaID id.CAPAID) (*finding.CAPA, error) {
	c, err := scanCAPA(s.db.QueryRowContext(ctx, `
		SELECT id, code, finding_id, audit_id, priority, description, assigned_to, due_date, status, created_at, updated_at
		FROM capas
		WHERE id = $1
	`, uuid.UUID(capaID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get capa: %w", err)
	}
	return c, nil
}

func (s *Postgres) UpdateCAPA(ctx context.Context, c *finding.CAPA) error {
	var assignedTo any
	if c.AssignedTo != (id.UserID{}) {
		assignedTo = uuid.UUID(c.AssignedTo)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE capas SET priority = $2, assigned_to = $3, due_date = $4, status = $5, updated_at = $6
		WHERE id = $1
	`, uuid.UUID(c.ID), string(c.Priority), assignedTo, c.DueDate, string(c.Status), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update capa: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) ListCAPAsByAudit(ctx context.Context, auditID id.AuditID) ([]finding.CAPA, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, finding_id, audit_id, priority, description, assigned_to, due_date, status, created_at, updated_at
		FROM capas
		WHERE audit_id = $1
		ORDER BY code
	`, uuid.UUID(auditID))
	if err != nil {
		return nil, fmt.Errorf("list capas: %w", err)
	}
	defer rows.Close()

	var out []finding.CAPA
	for rows.Next() {
		c, err := scanCAPA(rows)
		if err != nil {
			return nil, fmt.Errorf("list capas: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ListEntities returns the distinct entities with any audit on record, the
// health batch's fleet registry.
func (s *Postgres) ListEntities(ctx context.Context) ([]id.EntityRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT entity_type, entity_id
		FROM audits
		ORDER BY entity_type, entity_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []id.EntityRef
	for rows.Next() {
		var (
			entityType string
			entityID   uuid.UUID
		)
		if err := rows.Scan(&entityType, &entityID); err != nil {
			return nil, fmt.Errorf("list entities: %w", err)
		}
		out = append(out, id.EntityRef{Type: id.EntityType(entityType), ID: id.EntityID(entityID)})
	}
	return out, rows.Err()
}

func (s *Postgres) CountOpenCAPAsByEntity(ctx context.Context, ref id.EntityRef) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM capas c
		JOIN audits a ON a.id = c.audit_id
		WHERE a.entity_type = $1 AND a.entity_id = $2
		  AND c.status NOT IN ('closed', 'rejected')
	`, string(ref.Type), uuid.UUID(ref.ID)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open capas: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func auditArgs(a *audit.Audit) []any {
	return []any{
		uuid.UUID(a.ID), a.Code, string(a.EntityType), uuid.UUID(a.EntityID),
		uuid.UUID(a.TemplateID), uuid.UUID(a.AuditorID), string(a.Status),
		a.ScheduledFor, a.StartedAt, a.CompletedAt,
		a.Overall, a.Pass, a.CriticalFail, a.CreatedAt, a.UpdatedAt,
	}
}

func scanAudit(row rowScanner) (*audit.Audit, error) {
	var (
		a                        audit.Audit
		aid, eid, tid, auditorID uuid.UUID
		entityType, status       string
	)
	err := row.Scan(
		&aid, &a.Code, &entityType, &eid, &tid, &auditorID, &status,
		&a.ScheduledFor, &a.StartedAt, &a.CompletedAt,
		&a.Overall, &a.Pass, &a.CriticalFail, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.ID = id.AuditID(aid)
	a.EntityType = id.EntityType(entityType)
	a.EntityID = id.EntityID(eid)
	a.TemplateID = id.TemplateID(tid)
	a.AuditorID = id.AuditorID(auditorID)
	a.Status = audit.Status(status)
	return &a, nil
}

func scanCAPA(row rowScanner) (*finding.CAPA, error) {
	var (
		c                finding.CAPA
		cid, fid, aid    uuid.UUID
		assignedTo       sql.Null[uuid.UUID]
		priority, status string
	)
	err := row.Scan(&cid, &c.Code, &fid, &aid, &priority, &c.Description, &assignedTo, &c.DueDate, &status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = id.CAPAID(cid)
	c.FindingID = id.FindingID(fid)
	c.AuditID = id.AuditID(aid)
	c.Priority = id.Severity(priority)
	c.Status = finding.CAPAStatus(status)
	if assignedTo.Valid {
		c.AssignedTo = id.UserID(assignedTo.V)
	}
	return &c, nil
}
