package repo

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/account/entity"
)

// AccountRepo provides data access for the accounts table.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the accounts table if it does not exist.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  email CITEXT NOT NULL UNIQUE,
  name TEXT NOT NULL DEFAULT '',
  subscription TEXT NOT NULL DEFAULT 'free',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a profile row and fills in the server-side defaults.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO accounts (id, email, name, subscription)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'free'))
		RETURNING subscription, created_at, updated_at`
	return r.db.QueryRowxContext(ctx, q, a.ID, a.Email, a.Name, a.Subscription).
		Scan(&a.Subscription, &a.CreatedAt, &a.UpdatedAt)
}

// GetByID returns the profile or sql.ErrNoRows.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*entity.Account, error) {
	const q = `SELECT id, email, name, subscription, created_at, updated_at FROM accounts WHERE id=$1`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		return nil, err
	}
	return &a, nil
}

// Update applies the non-nil fields of upd and returns the new row or sql.ErrNoRows.
func (r *AccountRepo) Update(ctx context.Context, id string, upd entity.ProfileUpdate) (*entity.Account, error) {
	sets := []string{"updated_at=NOW()"}
	args := []any{id}
	if upd.Name != nil {
		args = append(args, *upd.Name)
		sets = append(sets, "name=$2")
	}
	if upd.Email != nil {
		args = append(args, *upd.Email)
		if upd.Name != nil {
			sets = append(sets, "email=$3")
		} else {
			sets = append(sets, "email=$2")
		}
	}
	q := `UPDATE accounts SET ` + strings.Join(sets, ", ") +
		` WHERE id=$1 RETURNING id, email, name, subscription, created_at, updated_at`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, args...); err != nil {
		return nil, err
	}
	return &a, nil
}
