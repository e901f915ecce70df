package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/identity/entity"
)

// IdentityRepo provides data access for the identities table using sqlx.
type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(db *sqlx.DB) *IdentityRepo { return &IdentityRepo{db: db} }

// EnsureTable creates the identities table if not exists (idempotent).
func (r *IdentityRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS identities (
  id TEXT PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  password_hash TEXT,
  password_algo TEXT,
  password_updated_at TIMESTAMPTZ,
  status TEXT NOT NULL DEFAULT 'active',
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new identity row.
func (r *IdentityRepo) Create(ctx context.Context, u *entity.Identity) error {
	const q = `INSERT INTO identities (id,email,name,password_hash,password_algo,password_updated_at,status,version)
		VALUES (:id,:email,:name,:password_hash,:password_algo,NOW(),:status,:version)`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return err
}

const selectIdentity = `SELECT id, email, name, password_hash, password_algo, password_updated_at,
	status, login_failed_attempts, locked_until, last_login_at, version, created_at, updated_at
	FROM identities`

// GetByEmail returns an identity matched by email (case-insensitive due to citext) or sql.ErrNoRows.
func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	var row entity.Identity
	if err := r.db.GetContext(ctx, &row, selectIdentity+` WHERE email=$1`, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full identity row.
func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*entity.Identity, error) {
	var row entity.Identity
	if err := r.db.GetContext(ctx, &row, selectIdentity+` WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetMinimalAuthView returns only the fields needed for token claim hydration.
func (r *IdentityRepo) GetMinimalAuthView(ctx context.Context, id string) (*entity.MinimalAuthView, error) {
	const q = `SELECT id, email, name, version FROM identities WHERE id=$1`
	var v entity.MinimalAuthView
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// IncrementFailedLogin increments the failure counter atomically and returns new value.
func (r *IdentityRepo) IncrementFailedLogin(ctx context.Context, id string) (int, error) {
	const q = `UPDATE identities SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks the identity if attempts >= threshold and currently active.
func (r *IdentityRepo) LockIfThreshold(ctx context.Context, id string, threshold int, lockMinutes int) (bool, error) {
	const q = `UPDATE identities SET status='locked', locked_until = NOW() + ($2 || ' minutes')::interval, updated_at=NOW()
              WHERE id=$1 AND status='active' AND login_failed_attempts >= $3 RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id, lockMinutes, threshold)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetLoginSuccess resets failure metrics on successful authentication.
func (r *IdentityRepo) ResetLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE identities SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}

// UnlockIfExpired sets status back to active if locked_until passed.
func (r *IdentityRepo) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE identities SET status='active', locked_until=NULL, updated_at=NOW()
               WHERE id=$1 AND status='locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	var one int
	err := r.db.GetContext(ctx, &one, q, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// BumpVersion increments version so outstanding tokens can be told apart.
func (r *IdentityRepo) BumpVersion(ctx context.Context, id string) error {
	const q = `UPDATE identities SET version = version + 1, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
