package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

// EnsureTable creates the refresh_sessions table if it does not exist.
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS refresh_sessions (
  token TEXT PRIMARY KEY,
  id BIGSERIAL,
  identity_id TEXT NOT NULL,
  client_id TEXT NOT NULL DEFAULT '',
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_sessions_identity ON refresh_sessions(identity_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *RefreshRepo) Save(ctx context.Context, token string, identityID string, clientID string, expiresAt time.Time) (int64, error) {
	query := `INSERT INTO refresh_sessions (token, identity_id, client_id, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	row := r.db.QueryRowxContext(ctx, query, token, identityID, clientID, expiresAt)
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RefreshRepo) Get(ctx context.Context, token string) (int64, string, string, time.Time, error) {
	var id int64
	var identityID string
	var clientID string
	var expiresAt time.Time
	query := `SELECT id, identity_id, client_id, expires_at FROM refresh_sessions WHERE token = $1`
	row := r.db.QueryRowxContext(ctx, query, token)
	if err := row.Scan(&id, &identityID, &clientID, &expiresAt); err != nil {
		return 0, "", "", time.Time{}, err
	}
	return id, identityID, clientID, expiresAt, nil
}

func (r *RefreshRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token = $1`, token)
	return err
}
