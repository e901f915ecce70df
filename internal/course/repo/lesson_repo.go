package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
)

type LessonRepo struct {
	db *sqlx.DB
}

func NewLessonRepo(db *sqlx.DB) *LessonRepo {
	return &LessonRepo{db: db}
}

const selectLesson = `SELECT id, course_id, order_number, title, content, duration_seconds,
	scheduled_for, completed_at, status FROM lessons`

// InsertBatch inserts all lessons in one statement.
func (r *LessonRepo) InsertBatch(ctx context.Context, tx *sqlx.Tx, lessons []entity.Lesson) error {
	if len(lessons) == 0 {
		return nil
	}
	const q = `INSERT INTO lessons (id, course_id, order_number, title, content, duration_seconds, scheduled_for, completed_at, status)
		VALUES (:id, :course_id, :order_number, :title, :content, :duration_seconds, :scheduled_for, :completed_at, :status)`
	_, err := tx.NamedExecContext(ctx, q, lessons)
	return err
}

// ListByCourse returns the lessons of a course in delivery order.
func (r *LessonRepo) ListByCourse(ctx context.Context, courseID string) ([]entity.Lesson, error) {
	out := []entity.Lesson{}
	err := r.db.SelectContext(ctx, &out, selectLesson+` WHERE course_id=$1 ORDER BY order_number`, courseID)
	return out, err
}

// Get returns the lesson or sql.ErrNoRows.
func (r *LessonRepo) Get(ctx context.Context, id string) (*entity.Lesson, error) {
	var l entity.Lesson
	if err := r.db.GetContext(ctx, &l, selectLesson+` WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &l, nil
}

// Owner returns the user id owning the lesson's course.
func (r *LessonRepo) Owner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.db.GetContext(ctx, &owner,
		`SELECT c.user_id FROM lessons l JOIN courses c ON c.id = l.course_id WHERE l.id=$1`, id)
	return owner, err
}

// Close moves a pending lesson to a terminal status. It returns sql.ErrNoRows
// when the lesson is missing or no longer pending.
func (r *LessonRepo) Close(ctx context.Context, id string, status entity.LessonStatus, completedAt *time.Time) (*entity.Lesson, error) {
	const q = `UPDATE lessons SET status=$2, completed_at=$3 WHERE id=$1 AND status='pending'
		RETURNING id, course_id, order_number, title, content, duration_seconds, scheduled_for, completed_at, status`
	var l entity.Lesson
	if err := r.db.GetContext(ctx, &l, q, id, status, completedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

// Due returns, per active course, the lowest pending lesson scheduled at or
// before now that has no delivery attempt yet. Courses with an attempt
// recorded at or after dayStart are left out so a backlog drains one lesson
// per day.
func (r *LessonRepo) Due(ctx context.Context, now, dayStart time.Time) ([]entity.DueLesson, error) {
	const q = `SELECT DISTINCT ON (l.course_id)
		l.id AS lesson_id, l.course_id, c.name AS course_name, l.order_number, l.title, l.content, l.scheduled_for,
		c.phone_number, c.delivery_schedule, c.delivery_time
	FROM lessons l
	JOIN courses c ON c.id = l.course_id
	WHERE c.status = 'active' AND l.status = 'pending' AND l.scheduled_for <= $1
		AND NOT EXISTS (SELECT 1 FROM outbound_messages o WHERE o.lesson_id = l.id)
		AND NOT EXISTS (SELECT 1 FROM outbound_messages t WHERE t.course_id = l.course_id AND t.created_at >= $2)
	ORDER BY l.course_id, l.order_number`
	var out []entity.DueLesson
	err := r.db.SelectContext(ctx, &out, q, now, dayStart)
	return out, err
}
