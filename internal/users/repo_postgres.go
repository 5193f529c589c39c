package users

import (
	"context"
	"database/sql"
	"errors"
)

// NOTE: This repository assumes the following table exists:
//
// CREATE TABLE users (
//   id         UUID PRIMARY KEY,
//   email      TEXT NOT NULL UNIQUE,
//   name       TEXT NOT NULL,
//   status     TEXT NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL,
//   updated_at TIMESTAMPTZ NOT NULL
// );

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Insert(ctx context.Context, u User) error {
	const q = `
INSERT INTO users (id, email, name, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q, u.ID, u.Email, u.Name, string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (User, error) {
	const q = `
SELECT id, email, name, status, created_at, updated_at
FROM users
WHERE id = $1
`
	var u User
	if err := r.db.QueryRowContext(ctx, q, id).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) Update(ctx context.Context, u User) error {
	const q = `
UPDATE users
SET email = $2, name = $3, status = $4, updated_at = $5
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, u.ID, u.Email, u.Name, string(u.Status), u.UpdatedAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	const q = `
DELETE FROM users
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
