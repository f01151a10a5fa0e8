package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresLedger persists outcomes in Postgres. The primary key on
// (identity, class_id) enforces the single write.
type PostgresLedger struct {
	db *sql.DB
}

// NewPostgresLedger creates a ledger on an open pool.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS attendance_outcomes (
	id          UUID        NOT NULL,
	identity    TEXT        NOT NULL,
	class_id    TEXT        NOT NULL,
	status      TEXT        NOT NULL CHECK (status IN ('present', 'absent')),
	reason      TEXT        NOT NULL,
	decided_at  TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (identity, class_id)
)`

// EnsureSchema creates the outcomes table when missing.
func (r *PostgresLedger) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// Get returns nil when the pair is undecided.
func (r *PostgresLedger) Get(ctx context.Context, identity, classID string) (*Outcome, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, identity, class_id, status, reason, decided_at
		FROM attendance_outcomes
		WHERE identity = $1 AND class_id = $2
	`, identity, classID)
	var o Outcome
	if err := row.Scan(&o.ID, &o.Identity, &o.ClassID, &o.Status, &o.Reason, &o.DecidedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Put inserts o; an existing row for the pair yields ErrAlreadyDecided.
func (r *PostgresLedger) Put(ctx context.Context, o Outcome) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_outcomes (id, identity, class_id, status, reason, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity, class_id) DO NOTHING
	`, o.ID, o.Identity, o.ClassID, string(o.Status), o.Reason, o.DecidedAt)
	if err != nil {
		return fmt.Errorf("attendance: insert outcome: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyDecided
	}
	return nil
}

// List returns identity's outcomes ordered by decision time.
func (r *PostgresLedger) List(ctx context.Context, identity string) ([]Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, identity, class_id, status, reason, decided_at
		FROM attendance_outcomes
		WHERE identity = $1
		ORDER BY decided_at, class_id
	`, identity)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

// ListAll pages through every outcome, newest first, optionally filtered by class.
func (r *PostgresLedger) ListAll(ctx context.Context, classID string, limit, offset int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, identity, class_id, status, reason, decided_at FROM attendance_outcomes`
	args := []any{}
	if classID != "" {
		query += ` WHERE class_id = $1`
		args = append(args, classID)
	}
	query += fmt.Sprintf(" ORDER BY decided_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanOutcomes(rows)
}

func scanOutcomes(rows *sql.Rows) ([]Outcome, error) {
	var res []Outcome
	for rows.Next() {
		var o Outcome
		if err := rows.Scan(&o.ID, &o.Identity, &o.ClassID, &o.Status, &o.Reason, &o.DecidedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
