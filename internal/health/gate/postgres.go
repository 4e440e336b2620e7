package gate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Postgres keeps the watermark in a single named row. The conditional
// UPDATE ... RETURNING is the compare-and-set: of any number of concurrent
// callers, exactly one sees a row updated.
type Postgres struct {
	db   *sql.DB
	name string
}

// NewPostgres creates a postgres-backed watermark under the given gate name.
func NewPostgres(db *sql.DB, name string) *Postgres {
	return &Postgres{db: db, name: name}
}

func (p *Postgres) TryAcquire(ctx context.Context, now time.Time, interval time.Duration) (bool, time.Time, error) {
	// Bootstrap the row; a loser of this race just proceeds to the UPDATE.
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO batch_gates (name, last_run)
		VALUES ($1, to_timestamp(0))
		ON CONFLICT (name) DO NOTHING
	`, p.name)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("gate bootstrap: %w", err)
	}

	var previous time.Time
	err = p.db.QueryRowContext(ctx, `
		UPDATE batch_gates
		SET last_run = $2
		WHERE name = $1 AND last_run <= $2 - $3::interval
		RETURNING (SELECT last_run FROM batch_gates WHERE name = $1)
	`, p.name, now, fmt.Sprintf("%f seconds", interval.Seconds())).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Gate held: surface the current watermark for the caller.
			var lastRun time.Time
			if err := p.db.QueryRowContext(ctx,
				`SELECT last_run FROM batch_gates WHERE name = $1`, p.name,
			).Scan(&lastRun); err != nil {
				return false, time.Time{}, fmt.Errorf("gate read: %w", err)
			}
			return false, normalizeEpoch(lastRun), nil
		}
		return false, time.Time{}, fmt.Errorf("gate try acquire: %w", err)
	}
	return true, normalizeEpoch(previous), nil
}

func (p *Postgres) Rollback(ctx context.Context, previous time.Time) error {
	if previous.IsZero() {
		previous = time.Unix(0, 0)
	}
	if _, err := p.db.ExecContext(ctx, `
		UPDATE batch_gates SET last_run = $2 WHERE name = $1
	`, p.name, previous); err != nil {
		return fmt.Errorf("gate rollback: %w", err)
	}
	return nil
}

// normalizeEpoch maps the bootstrap epoch row back to the zero time callers
// treat as "never ran".
func normalizeEpoch(t time.Time) time.Time {
	if t.Unix() == 0 {
		return time.Time{}
	}
	return t
}
