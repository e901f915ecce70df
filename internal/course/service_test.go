package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/ingest"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/account"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/plan"
	planrepo "github.com/ovaphlow/pitchfork/service-microburst/internal/plan/repo"
)

type fakeIngestor struct {
	stubs []ingest.Stub
	err   error
	got   ingest.Source
}

func (f *fakeIngestor) Process(_ context.Context, src ingest.Source) ([]ingest.Stub, error) {
	f.got = src
	return f.stubs, f.err
}

type fakeSender struct {
	phone, text string
	err         error
}

func (f *fakeSender) Send(_ context.Context, phone, text string) error {
	f.phone, f.text = phone, text
	return f.err
}

type fixedQuota struct{ err error }

func (q fixedQuota) AllowCourse(context.Context, string, int) error { return q.err }

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	mock     sqlmock.Sqlmock
	ingestor *fakeIngestor
	sender   *fakeSender
	clock    *clockwork.FakeClock
}

func newFixture(t *testing.T, quota QuotaChecker) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	f := &fixture{mock: mock, ingestor: &fakeIngestor{}, sender: &fakeSender{}, clock: clockwork.NewFakeClockAt(start)}
	f.svc = NewService(sqlx.NewDb(db, "postgres"), f.ingestor, f.sender, quota, f.clock, nil)
	return f
}

func chapters(n int) []ingest.Stub {
	out := make([]ingest.Stub, n)
	for i := range out {
		out[i] = ingest.Stub{Title: fmt.Sprintf("Chapter %d", i+1), Content: "pages"}
	}
	return out
}

func pdfInput() entity.CreateInput {
	return entity.CreateInput{
		UserID:           "u1",
		Name:             " Go in Action ",
		Type:             entity.SourcePDF,
		DeliverySchedule: entity.ScheduleDaily,
		DeliveryTime:     "09:00",
		PhoneNumber:      "+15550001",
		FileName:         "book.pdf",
		File:             strings.NewReader("%PDF"),
	}
}

func TestCreateCourseDocument(t *testing.T) {
	f := newFixture(t, nil)
	f.ingestor.stubs = chapters(20)

	f.mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec(`UPDATE courses SET total_lessons=\$2 WHERE id=\$1 AND total_lessons=0`).
		WithArgs(sqlmock.AnyArg(), 20).
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO lessons").WillReturnResult(sqlmock.NewResult(0, 20))
	f.mock.ExpectCommit()

	c, err := f.svc.CreateCourse(context.Background(), pdfInput())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	assert.Equal(t, 20, c.TotalLessons)
	assert.Equal(t, "Go in Action", c.Name)
	assert.Equal(t, entity.StatusActive, c.Status)
	assert.Equal(t, "book.pdf", c.SourceURL)
	assert.Equal(t, ingest.SourcePDF, f.ingestor.got.Type)
	require.Len(t, c.Lessons, 20)
	for i, l := range c.Lessons {
		assert.Equal(t, i+1, l.OrderNumber)
		assert.Equal(t, entity.LessonPending, l.Status)
		assert.Nil(t, l.CompletedAt)
		assert.Equal(t, c.ID, l.CourseID)
	}
}

func TestBuildLessonsSchedule(t *testing.T) {
	d := 300
	stubs := []ingest.Stub{{Title: "a", Duration: &d}, {Title: "b"}, {Title: "c"}}
	lessons := BuildLessons("c1", start, stubs)

	require.Len(t, lessons, 3)
	assert.Equal(t, start.Add(24*time.Hour), lessons[0].ScheduledFor)
	for i := 1; i < len(lessons); i++ {
		assert.Equal(t, 24*time.Hour, lessons[i].ScheduledFor.Sub(lessons[i-1].ScheduledFor))
		assert.NotEqual(t, lessons[i].ID, lessons[i-1].ID)
	}
	assert.Equal(t, 300, *lessons[0].DurationSeconds)
	assert.Nil(t, lessons[1].DurationSeconds)
}

func TestCreateCourseIngestionFailureLeavesCourse(t *testing.T) {
	f := newFixture(t, nil)
	f.ingestor.err = errors.New("Invalid YouTube playlist URL")

	f.mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))

	in := pdfInput()
	in.Type = entity.SourceYouTube
	in.File = nil
	in.SourceURL = "https://www.youtube.com/watch?v=1"
	_, err := f.svc.CreateCourse(context.Background(), in)

	var ierr *IngestError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "Invalid YouTube playlist URL", err.Error())
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateCourseEmptyIngestion(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := f.svc.CreateCourse(context.Background(), pdfInput())
	assert.ErrorIs(t, err, ingest.ErrNoLessons)
}

func TestCreateCourseValidation(t *testing.T) {
	f := newFixture(t, nil)

	in := pdfInput()
	in.PhoneNumber = "555"
	_, err := f.svc.CreateCourse(context.Background(), in)
	var verr validator.ValidationErrors
	assert.ErrorAs(t, err, &verr)

	in = pdfInput()
	in.DeliveryTime = "9am"
	_, err = f.svc.CreateCourse(context.Background(), in)
	assert.ErrorAs(t, err, &verr)

	in = pdfInput()
	in.File = nil
	_, err = f.svc.CreateCourse(context.Background(), in)
	assert.ErrorIs(t, err, ErrDocumentRequired)

	in = pdfInput()
	in.Type = entity.SourceYouTube
	_, err = f.svc.CreateCourse(context.Background(), in)
	assert.ErrorIs(t, err, ErrPlaylistRequired)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateCourseQuota(t *testing.T) {
	f := newFixture(t, fixedQuota{err: plan.ErrQuotaExceeded})
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses WHERE user_id`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	_, err := f.svc.CreateCourse(context.Background(), pdfInput())
	assert.ErrorIs(t, err, plan.ErrQuotaExceeded)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

type noProfile struct{}

func (noProfile) Tier(context.Context, string) (string, error) { return "", account.ErrNotFound }

func TestCreateCourseWithoutProfileUsesFreePlan(t *testing.T) {
	planDB, planMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { planDB.Close() })
	plans := plan.NewService(planrepo.NewRepo(sqlx.NewDb(planDB, "postgres")), noProfile{})
	planMock.ExpectQuery("FROM plans WHERE tier").
		WithArgs("free").
		WillReturnRows(sqlmock.NewRows([]string{"tier", "label", "max_courses"}).AddRow("free", "Free", 1))

	f := newFixture(t, plans)
	f.ingestor.stubs = chapters(20)
	f.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM courses WHERE user_id`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	f.mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE courses SET total_lessons").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectExec("INSERT INTO lessons").WillReturnResult(sqlmock.NewResult(0, 20))
	f.mock.ExpectCommit()

	c, err := f.svc.CreateCourse(context.Background(), pdfInput())
	require.NoError(t, err)
	assert.Equal(t, 20, c.TotalLessons)
	require.NoError(t, f.mock.ExpectationsWereMet())
	require.NoError(t, planMock.ExpectationsWereMet())
}

func TestCreateCourseAlreadyIngested(t *testing.T) {
	f := newFixture(t, nil)
	f.ingestor.stubs = chapters(2)
	f.mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(0, 1))
	f.mock.ExpectBegin()
	f.mock.ExpectExec("UPDATE courses SET total_lessons").WillReturnResult(sqlmock.NewResult(0, 0))
	f.mock.ExpectRollback()

	_, err := f.svc.CreateCourse(context.Background(), pdfInput())
	assert.ErrorIs(t, err, ErrAlreadyIngested)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

var courseCols = []string{"id", "user_id", "name", "type", "source_url", "delivery_schedule", "delivery_time",
	"total_lessons", "status", "phone_number", "created_at"}

var lessonCols = []string{"id", "course_id", "order_number", "title", "content", "duration_seconds",
	"scheduled_for", "completed_at", "status"}

func courseRow(status string) *sqlmock.Rows {
	return sqlmock.NewRows(courseCols).
		AddRow("c1", "u1", "Go", "pdf", "book.pdf", "daily", "09:00", 2, status, "+15550001", start)
}

func TestGetCourse(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("FROM courses WHERE id").WithArgs("c1").WillReturnRows(courseRow("active"))
	f.mock.ExpectQuery("FROM lessons WHERE course_id=\\$1 ORDER BY order_number").
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows(lessonCols).
			AddRow("l1", "c1", 1, "Chapter 1", "x", nil, start.Add(24*time.Hour), start, "completed").
			AddRow("l2", "c1", 2, "Chapter 2", "y", 300, start.Add(48*time.Hour), nil, "pending"))

	c, err := f.svc.GetCourse(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, c.Lessons, 2)
	assert.Equal(t, entity.LessonCompleted, c.Lessons[0].Status)
	assert.NotNil(t, c.Lessons[0].CompletedAt)
	assert.Equal(t, 300, *c.Lessons[1].DurationSeconds)
}

func TestGetCourseNotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("FROM courses WHERE id").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	c, err := f.svc.GetCourse(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Nil(t, c)
}

func TestGetCourseLessonFailureReturnsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("active"))
	f.mock.ExpectQuery("FROM lessons").WillReturnError(errors.New("connection reset"))

	c, err := f.svc.GetCourse(context.Background(), "c1")
	assert.Error(t, err)
	assert.Nil(t, c)
}

func TestUpdateLessonStatusCompleted(t *testing.T) {
	f := newFixture(t, nil)
	now := start.Add(30 * time.Hour)
	f.clock.Advance(30 * time.Hour)
	f.mock.ExpectQuery("UPDATE lessons SET status=\\$2, completed_at=\\$3 WHERE id=\\$1 AND status='pending'").
		WithArgs("l1", "completed", now).
		WillReturnRows(sqlmock.NewRows(lessonCols).AddRow("l1", "c1", 1, "Chapter 1", "x", nil, start.Add(24*time.Hour), now, "completed"))

	l, err := f.svc.UpdateLessonStatus(context.Background(), "l1", entity.LessonCompleted)
	require.NoError(t, err)
	require.NotNil(t, l.CompletedAt)
	assert.Equal(t, now, *l.CompletedAt)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateLessonStatusSkippedClearsCompletion(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.ExpectQuery("UPDATE lessons SET status").
		WithArgs("l1", "skipped", nil).
		WillReturnRows(sqlmock.NewRows(lessonCols).AddRow("l1", "c1", 1, "Chapter 1", "x", nil, start, nil, "skipped"))

	l, err := f.svc.UpdateLessonStatus(context.Background(), "l1", entity.LessonSkipped)
	require.NoError(t, err)
	assert.Nil(t, l.CompletedAt)
	assert.Equal(t, entity.LessonSkipped, l.Status)
}

func TestUpdateLessonStatusTerminal(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.UpdateLessonStatus(context.Background(), "l1", entity.LessonPending)
	assert.ErrorIs(t, err, ErrInvalidStatus)

	f.mock.ExpectQuery("UPDATE lessons SET status").WillReturnRows(sqlmock.NewRows(lessonCols))
	f.mock.ExpectQuery("FROM lessons WHERE id").WithArgs("l1").
		WillReturnRows(sqlmock.NewRows(lessonCols).AddRow("l1", "c1", 1, "t", "x", nil, start, start, "completed"))
	_, err = f.svc.UpdateLessonStatus(context.Background(), "l1", entity.LessonSkipped)
	assert.ErrorIs(t, err, ErrLessonClosed)

	f.mock.ExpectQuery("UPDATE lessons SET status").WillReturnRows(sqlmock.NewRows(lessonCols))
	f.mock.ExpectQuery("FROM lessons WHERE id").WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	_, err = f.svc.UpdateLessonStatus(context.Background(), "ghost", entity.LessonCompleted)
	assert.ErrorIs(t, err, ErrLessonNotFound)
	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateCourseStatus(t *testing.T) {
	f := newFixture(t, nil)

	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("active"))
	f.mock.ExpectExec(`UPDATE courses SET status=\$3 WHERE id=\$1 AND status=\$2`).
		WithArgs("c1", "active", "paused").
		WillReturnResult(sqlmock.NewResult(0, 1))
	c, err := f.svc.UpdateCourseStatus(context.Background(), "c1", entity.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaused, c.Status)

	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("completed"))
	_, err = f.svc.UpdateCourseStatus(context.Background(), "c1", entity.StatusActive)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	f.mock.ExpectQuery("FROM courses WHERE id").WillReturnRows(courseRow("completed"))
	c, err = f.svc.UpdateCourseStatus(context.Background(), "c1", entity.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, c.Status)

	require.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListCourses(t *testing.T) {
	f := newFixture(t, nil)
	cols := append(append([]string{}, courseCols...), "done_lessons", "next_lesson_title", "next_lesson_at")
	f.mock.ExpectQuery("FROM courses c").
		WithArgs("u1", "completed").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "u1", "Go", "pdf", "", "daily", "09:00", 20, "completed", "+1", start, 5, nil, nil))

	out, err := f.svc.ListCourses(context.Background(), "u1", entity.FilterCompleted)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 25, out[0].ProgressPercent)
	assert.Nil(t, out[0].NextLessonTitle)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.svc.SendMessage(context.Background(), "+1", "hi"))
	assert.Equal(t, "+1", f.sender.phone)

	f.sender.err = errors.New("failed to send message: status 500")
	assert.Error(t, f.svc.SendMessage(context.Background(), "+1", "hi"))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, entity.CanTransition(entity.StatusActive, entity.StatusPaused))
	assert.True(t, entity.CanTransition(entity.StatusPaused, entity.StatusActive))
	assert.True(t, entity.CanTransition(entity.StatusPaused, entity.StatusCompleted))
	assert.False(t, entity.CanTransition(entity.StatusCompleted, entity.StatusActive))
	assert.False(t, entity.CanTransition(entity.StatusCompleted, entity.StatusPaused))
}

func TestScheduleIncludes(t *testing.T) {
	assert.True(t, entity.ScheduleWeekdays.Includes(time.Monday))
	assert.False(t, entity.ScheduleWeekdays.Includes(time.Sunday))
	assert.True(t, entity.ScheduleWeekends.Includes(time.Saturday))
	assert.False(t, entity.ScheduleWeekends.Includes(time.Wednesday))
	assert.True(t, entity.ScheduleDaily.Includes(time.Sunday))
}
