// Package repo stores delivery attempts in the outbound_messages table.
package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/outbox/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

type OutboxRepo struct {
	db *sqlx.DB
}

func NewOutboxRepo(db *sqlx.DB) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// EnsureTable creates the outbound_messages table if it does not already exist.
// One row per lesson: a lesson with any recorded attempt is never sent again.
func (r *OutboxRepo) EnsureTable(ctx context.Context) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS outbound_messages (
		id varchar(32) PRIMARY KEY,
		lesson_id varchar(32) NOT NULL,
		course_id varchar(32) NOT NULL,
		phone_number varchar(32) NOT NULL DEFAULT '',
		body text NOT NULL DEFAULT '',
		status varchar(16) NOT NULL,
		last_error text NOT NULL DEFAULT '',
		created_at timestamptz NOT NULL DEFAULT NOW(),
		updated_at timestamptz NOT NULL DEFAULT NOW()
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	const idx = `
	CREATE UNIQUE INDEX IF NOT EXISTS idx_outbound_messages_lesson ON outbound_messages (lesson_id);
	`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}

	const idxCourse = `
	CREATE INDEX IF NOT EXISTS idx_outbound_messages_course ON outbound_messages (course_id);
	`
	if _, err := r.db.ExecContext(ctx, idxCourse); err != nil {
		return err
	}
	return nil
}

// Record inserts an attempt. It reports false when the lesson already has one.
func (r *OutboxRepo) Record(ctx context.Context, m *entity.Message) (bool, error) {
	if m.ID == "" {
		m.ID = utilities.NewKSUID()
	}
	const q = `INSERT INTO outbound_messages (id, lesson_id, course_id, phone_number, body, status, last_error)
		VALUES (:id, :lesson_id, :course_id, :phone_number, :body, :status, :last_error)
		ON CONFLICT (lesson_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, q, m)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Finish stores the outcome of a recorded attempt.
func (r *OutboxRepo) Finish(ctx context.Context, id string, status entity.Status, lastError string) error {
	const q = `UPDATE outbound_messages SET status=$2, last_error=$3, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, status, lastError)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByCourse returns the attempts of a course, oldest first.
func (r *OutboxRepo) ListByCourse(ctx context.Context, courseID string) ([]entity.Message, error) {
	var out []entity.Message
	const q = `SELECT id, lesson_id, course_id, phone_number, body, status, last_error, created_at, updated_at
		FROM outbound_messages WHERE course_id=$1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &out, q, courseID)
	return out, err
}
