// Package course is the data access facade behind the dashboard, the
// creation wizard and the course detail view.
package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/entity"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/course/repo"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/ingest"
	"github.com/ovaphlow/pitchfork/service-microburst/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/database"
	"github.com/ovaphlow/pitchfork/service-microburst/pkg/utilities"
)

// LessonSpacing separates consecutive lessons; the first lands one spacing
// after creation.
const LessonSpacing = 24 * time.Hour

var (
	ErrNotFound          = errors.New("course not found")
	ErrLessonNotFound    = errors.New("lesson not found")
	ErrLessonClosed      = errors.New("lesson is already completed or skipped")
	ErrInvalidStatus     = errors.New("status must be completed or skipped")
	ErrInvalidTransition = errors.New("course status change not allowed")
	ErrAlreadyIngested   = errors.New("course lessons were already created")
	ErrPlaylistRequired  = errors.New("please enter a YouTube playlist URL")
	ErrDocumentRequired  = errors.New("please upload a PDF file")
)

// IngestError carries a failure of the ingestion endpoint with its message
// unchanged.
type IngestError struct{ Err error }

func (e *IngestError) Error() string { return e.Err.Error() }
func (e *IngestError) Unwrap() error { return e.Err }

// Ingestor turns a source into lesson stubs.
type Ingestor interface {
	Process(ctx context.Context, src ingest.Source) ([]ingest.Stub, error)
}

// Sender delivers a text message to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// QuotaChecker decides whether an owner may add another course.
type QuotaChecker interface {
	AllowCourse(ctx context.Context, ownerID string, existing int) error
}

type Service struct {
	db       *sqlx.DB
	courses  *repo.CourseRepo
	lessons  *repo.LessonRepo
	ingestor Ingestor
	sender   Sender
	quota    QuotaChecker
	clock    clockwork.Clock
	validate *validator.Validate
	logger   *zap.SugaredLogger
}

// NewService wires the facade. quota may be nil to disable plan limits.
func NewService(db *sqlx.DB, ingestor Ingestor, sender Sender, quota QuotaChecker, clock clockwork.Clock, logger *zap.SugaredLogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		db:       db,
		courses:  repo.NewCourseRepo(db),
		lessons:  repo.NewLessonRepo(db),
		ingestor: ingestor,
		sender:   sender,
		quota:    quota,
		clock:    clock,
		validate: validator.New(),
		logger:   logger,
	}
}

func (s *Service) Courses() *repo.CourseRepo { return s.courses }
func (s *Service) Lessons() *repo.LessonRepo { return s.lessons }

// CreateCourse inserts the course, ingests its source and stores the lessons.
// A failure after the insert leaves the course row behind with no lessons.
func (s *Service) CreateCourse(ctx context.Context, in entity.CreateInput) (c *entity.Course, err error) {
	defer func() { metrics.RecordCourseCreated(string(in.Type), err) }()

	in.Name = strings.TrimSpace(in.Name)
	in.SourceURL = strings.TrimSpace(in.SourceURL)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	switch {
	case in.Type == entity.SourceYouTube && in.SourceURL == "":
		return nil, ErrPlaylistRequired
	case in.Type == entity.SourcePDF && in.File == nil && in.SourceURL == "":
		return nil, ErrDocumentRequired
	}

	if s.quota != nil {
		n, err := s.courses.CountByOwner(ctx, in.UserID)
		if err != nil {
			return nil, fmt.Errorf("count courses: %w", err)
		}
		if err := s.quota.AllowCourse(ctx, in.UserID, n); err != nil {
			return nil, err
		}
	}

	c = &entity.Course{
		ID:               utilities.NewKSUID(),
		UserID:           in.UserID,
		Name:             in.Name,
		Type:             in.Type,
		SourceURL:        in.SourceURL,
		DeliverySchedule: in.DeliverySchedule,
		DeliveryTime:     in.DeliveryTime,
		Status:           entity.StatusActive,
		PhoneNumber:      in.PhoneNumber,
		CreatedAt:        s.clock.Now().UTC(),
	}
	if c.SourceURL == "" && in.FileName != "" {
		c.SourceURL = in.FileName
	}
	if err := s.courses.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("insert course: %w", err)
	}

	start := s.clock.Now()
	stubs, err := s.ingestor.Process(ctx, ingest.Source{
		Type:     ingest.SourceType(in.Type),
		URL:      in.SourceURL,
		FileName: in.FileName,
		File:     in.File,
	})
	metrics.RecordIngest(string(in.Type), s.clock.Since(start))
	if err != nil {
		s.logger.Warnw("ingestion failed", "course", c.ID, "type", in.Type, "err", err)
		return nil, &IngestError{Err: err}
	}
	if len(stubs) == 0 {
		return nil, &IngestError{Err: ingest.ErrNoLessons}
	}

	lessons := BuildLessons(c.ID, c.CreatedAt, stubs)
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		ok, err := s.courses.SetTotalLessons(ctx, tx, c.ID, len(lessons))
		if err != nil {
			return fmt.Errorf("set lesson count: %w", err)
		}
		if !ok {
			return ErrAlreadyIngested
		}
		if err := s.lessons.InsertBatch(ctx, tx, lessons); err != nil {
			return fmt.Errorf("insert lessons: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.TotalLessons = len(lessons)
	c.Lessons = lessons
	s.logger.Infow("course created", "course", c.ID, "owner", c.UserID, "type", c.Type, "lessons", c.TotalLessons)
	return c, nil
}

// BuildLessons numbers stubs 1..N and schedules lesson i at createdAt + i days.
func BuildLessons(courseID string, createdAt time.Time, stubs []ingest.Stub) []entity.Lesson {
	out := make([]entity.Lesson, len(stubs))
	for i, st := range stubs {
		out[i] = entity.Lesson{
			ID:              utilities.NewKSUID(),
			CourseID:        courseID,
			OrderNumber:     i + 1,
			Title:           st.Title,
			Content:         st.Content,
			DurationSeconds: st.Duration,
			ScheduledFor:    createdAt.Add(time.Duration(i+1) * LessonSpacing),
			Status:          entity.LessonPending,
		}
	}
	return out
}

// GetCourse returns the course with its lessons in order.
func (s *Service) GetCourse(ctx context.Context, id string) (*entity.Course, error) {
	c, err := s.courses.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	lessons, err := s.lessons.ListByCourse(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	c.Lessons = lessons
	return c, nil
}

// ListCourses returns the owner's dashboard rows.
func (s *Service) ListCourses(ctx context.Context, ownerID string, filter entity.Filter) ([]entity.Summary, error) {
	var status entity.Status
	switch filter {
	case entity.FilterActive:
		status = entity.StatusActive
	case entity.FilterCompleted:
		status = entity.StatusCompleted
	}
	out, err := s.courses.ListByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []entity.Summary{}
	}
	return out, nil
}

// UpdateLessonStatus closes a pending lesson. completed_at is set only for
// completed.
func (s *Service) UpdateLessonStatus(ctx context.Context, lessonID string, status entity.LessonStatus) (*entity.Lesson, error) {
	var completedAt *time.Time
	switch status {
	case entity.LessonCompleted:
		now := s.clock.Now().UTC()
		completedAt = &now
	case entity.LessonSkipped:
	default:
		return nil, ErrInvalidStatus
	}

	l, err := s.lessons.Close(ctx, lessonID, status, completedAt)
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if _, err := s.lessons.Get(ctx, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLessonNotFound
		}
		return nil, err
	}
	return nil, ErrLessonClosed
}

// UpdateCourseStatus pauses, resumes or completes a course. Setting the
// current status again is a no-op.
func (s *Service) UpdateCourseStatus(ctx context.Context, id string, status entity.Status) (*entity.Course, error) {
	c, err := s.courses.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if c.Status == status {
		return c, nil
	}
	if !entity.CanTransition(c.Status, status) {
		return nil, ErrInvalidTransition
	}
	ok, err := s.courses.UpdateStatus(ctx, id, c.Status, status)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	c.Status = status
	return c, nil
}

// LessonOwner returns the owner of a lesson's course.
func (s *Service) LessonOwner(ctx context.Context, lessonID string) (string, error) {
	owner, err := s.lessons.Owner(ctx, lessonID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrLessonNotFound
	}
	return owner, err
}

// SendMessage hands text to the messaging endpoint.
func (s *Service) SendMessage(ctx context.Context, phone, text string) error {
	return s.sender.Send(ctx, phone, text)
}
