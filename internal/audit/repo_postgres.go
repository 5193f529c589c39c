package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE audit_records (
//   id           UUID PRIMARY KEY,
//   actor_id     TEXT NOT NULL,
//   subject_id   TEXT NOT NULL,
//   subject_kind TEXT NOT NULL,
//   action       TEXT NOT NULL,
//   transport    TEXT,
//   payload      JSONB NOT NULL,
//   parent_id    UUID,
//   occurred_at  TIMESTAMPTZ NOT NULL,
//   sequence     BIGSERIAL
// );
// CREATE INDEX ON audit_records (subject_id);
// CREATE INDEX ON audit_records (parent_id);
//
// An INSERT-only policy (or an UPDATE/DELETE-blocking trigger) should be
// applied; nothing in this repository mutates existing rows.

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	const q = `
INSERT INTO audit_records (
  id, actor_id, subject_id, subject_kind, action, transport, payload, parent_id, occurred_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
RETURNING sequence
`
	err := r.db.QueryRowContext(ctx, q,
		rec.ID,
		rec.ActorID,
		rec.SubjectID,
		rec.SubjectKind,
		string(rec.Action),
		nullIfEmpty(string(rec.Transport)),
		[]byte(rec.Payload),
		nullIfEmpty(rec.ParentID),
		rec.OccurredAt,
	).Scan(&rec.Sequence)
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *PostgresRepo) FindBySubject(ctx context.Context, subjectID string) ([]Record, error) {
	const q = selectColumns + `
WHERE subject_id = $1
ORDER BY occurred_at ASC, sequence ASC
`
	rows, err := r.db.QueryContext(ctx, q, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *PostgresRepo) FindByParent(ctx context.Context, parentID string) ([]Record, error) {
	const q = selectColumns + `
WHERE parent_id = $1
ORDER BY occurred_at ASC, sequence ASC
`
	rows, err := r.db.QueryContext(ctx, q, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (Record, error) {
	const q = selectColumns + `
WHERE id = $1
`
	row := r.db.QueryRowContext(ctx, q, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	return rec, nil
}

const selectColumns = `
SELECT id, actor_id, subject_id, subject_kind, action, transport, payload, parent_id, occurred_at, sequence
FROM audit_records
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	var transport, parentID sql.NullString
	var payload []byte
	if err := row.Scan(
		&rec.ID,
		&rec.ActorID,
		&rec.SubjectID,
		&rec.SubjectKind,
		&rec.Action,
		&transport,
		&payload,
		&parentID,
		&rec.OccurredAt,
		&rec.Sequence,
	); err != nil {
		return Record{}, err
	}
	rec.Transport = Transport(transport.String)
	rec.ParentID = parentID.String
	rec.Payload = payload
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
