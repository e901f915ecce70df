package repo

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
)

func TestDueSkipsCoursesDeliveredSinceDayStart(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	r := NewLessonRepo(sqlx.NewDb(db, "postgres"))

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	dayStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`t\.course_id = l\.course_id AND t\.created_at >= \$2`).
		WithArgs(now, dayStart).
		WillReturnRows(sqlmock.NewRows([]string{
			"lesson_id", "course_id", "course_name", "order_number", "title", "content", "scheduled_for",
			"phone_number", "delivery_schedule", "delivery_time",
		}).AddRow("l1", "c1", "Go", 1, "Chapter 1", "pages 1-3", now.Add(-time.Hour), "+15550001", "weekdays", "09:00"))

	due, err := r.Due(context.Background(), now, dayStart)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, entity.ScheduleWeekdays, due[0].DeliverySchedule)
	assert.Equal(t, "c1", due[0].CourseID)
	require.NoError(t, mock.ExpectationsWereMet())
}
