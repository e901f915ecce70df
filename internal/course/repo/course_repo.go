package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
)

type CourseRepo struct {
	db *sqlx.DB
}

func NewCourseRepo(db *sqlx.DB) *CourseRepo {
	return &CourseRepo{db: db}
}

// EnsureTable creates the courses and lessons tables if they do not exist.
func (r *CourseRepo) EnsureTable(ctx context.Context) error {
	const courses = `
	CREATE TABLE IF NOT EXISTS courses (
		id varchar(32) PRIMARY KEY,
		user_id varchar(32) NOT NULL,
		name varchar(200) NOT NULL,
		type varchar(16) NOT NULL CHECK (type IN ('youtube','pdf')),
		source_url text NOT NULL DEFAULT '',
		delivery_schedule varchar(16) NOT NULL CHECK (delivery_schedule IN ('daily','weekdays','weekends','custom')),
		delivery_time varchar(5) NOT NULL,
		total_lessons integer NOT NULL DEFAULT 0,
		status varchar(16) NOT NULL DEFAULT 'active' CHECK (status IN ('active','paused','completed')),
		phone_number varchar(32) NOT NULL,
		created_at timestamptz NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_courses_user ON courses (user_id, created_at DESC);
	`
	if _, err := r.db.ExecContext(ctx, courses); err != nil {
		return err
	}

	const lessons = `
	CREATE TABLE IF NOT EXISTS lessons (
		id varchar(32) PRIMARY KEY,
		course_id varchar(32) NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		order_number integer NOT NULL,
		title text NOT NULL,
		content text NOT NULL DEFAULT '',
		duration_seconds integer,
		scheduled_for timestamptz NOT NULL,
		completed_at timestamptz,
		status varchar(16) NOT NULL DEFAULT 'pending' CHECK (status IN ('pending','completed','skipped')),
		UNIQUE (course_id, order_number)
	);
	CREATE INDEX IF NOT EXISTS idx_lessons_due ON lessons (scheduled_for) WHERE status = 'pending';
	`
	_, err := r.db.ExecContext(ctx, lessons)
	return err
}

const selectCourse = `SELECT id, user_id, name, type, source_url, delivery_schedule, delivery_time,
	total_lessons, status, phone_number, created_at FROM courses`

func (r *CourseRepo) Create(ctx context.Context, c *entity.Course) error {
	const q = `INSERT INTO courses (id, user_id, name, type, source_url, delivery_schedule, delivery_time,
		total_lessons, status, phone_number, created_at)
		VALUES (:id, :user_id, :name, :type, :source_url, :delivery_schedule, :delivery_time,
		:total_lessons, :status, :phone_number, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, c)
	return err
}

// Get returns the course or sql.ErrNoRows.
func (r *CourseRepo) Get(ctx context.Context, id string) (*entity.Course, error) {
	var c entity.Course
	if err := r.db.GetContext(ctx, &c, selectCourse+` WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CourseRepo) CountByOwner(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM courses WHERE user_id=$1`, userID)
	return n, err
}

// ListByOwner returns the owner's courses, newest first, with the number of
// closed lessons and the next pending lesson. An empty status lists all.
func (r *CourseRepo) ListByOwner(ctx context.Context, userID string, status entity.Status) ([]entity.Summary, error) {
	const q = `SELECT c.id, c.user_id, c.name, c.type, c.source_url, c.delivery_schedule, c.delivery_time,
		c.total_lessons, c.status, c.phone_number, c.created_at,
		COALESCE((SELECT COUNT(*) FROM lessons l WHERE l.course_id = c.id AND l.status <> 'pending'), 0) AS done_lessons,
		n.title AS next_lesson_title, n.scheduled_for AS next_lesson_at
	FROM courses c
	LEFT JOIN LATERAL (
		SELECT title, scheduled_for FROM lessons
		WHERE course_id = c.id AND status = 'pending'
		ORDER BY order_number LIMIT 1
	) n ON true
	WHERE c.user_id = $1 AND ($2 = '' OR c.status = $2)
	ORDER BY c.created_at DESC`
	var out []entity.Summary
	if err := r.db.SelectContext(ctx, &out, q, userID, string(status)); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].ProgressPercent = entity.Progress(out[i].DoneLessons, out[i].TotalLessons)
	}
	return out, nil
}

// SetTotalLessons fixes the lesson count of a freshly ingested course. It
// reports false when the count was already set.
func (r *CourseRepo) SetTotalLessons(ctx context.Context, tx *sqlx.Tx, id string, n int) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE courses SET total_lessons=$2 WHERE id=$1 AND total_lessons=0`, id, n)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

// UpdateStatus moves a course from one status to another. It reports false
// when the course is no longer in the from status.
func (r *CourseRepo) UpdateStatus(ctx context.Context, id string, from, to entity.Status) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE courses SET status=$3 WHERE id=$1 AND status=$2`, id, from, to)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}
