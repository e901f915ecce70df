package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan/entity"
)

// Repo is the plans table backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable creates the plans table when missing and seeds the default
// tiers. Existing rows are left untouched.
func (r *Repo) EnsureTable(ctx context.Context) error {
	var tblName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.plans')").Scan(&tblName); err != nil {
		return err
	}
	if !tblName.Valid {
		const createTable = `CREATE TABLE plans (
			tier varchar(16) PRIMARY KEY,
			label varchar(64) NOT NULL DEFAULT '',
			max_courses integer NOT NULL DEFAULT 0
		)`
		if _, err := r.db.ExecContext(ctx, createTable); err != nil {
			return err
		}
	}

	const seed = `INSERT INTO plans (tier, label, max_courses) VALUES (:tier, :label, :max_courses)
		ON CONFLICT (tier) DO NOTHING`
	_, err := r.db.NamedExecContext(ctx, seed, entity.Defaults())
	return err
}

// Get returns the plan for tier or sql.ErrNoRows.
func (r *Repo) Get(ctx context.Context, tier entity.Tier) (*entity.Plan, error) {
	var p entity.Plan
	if err := r.db.GetContext(ctx, &p, `SELECT tier, label, max_courses FROM plans WHERE tier=$1`, tier); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns all plans, most restrictive first.
func (r *Repo) List(ctx context.Context) ([]entity.Plan, error) {
	var out []entity.Plan
	err := r.db.SelectContext(ctx, &out, `SELECT tier, label, max_courses FROM plans ORDER BY max_courses DESC, tier`)
	return out, err
}
