package entity

import "time"

type LessonStatus string

const (
	LessonPending   LessonStatus = "pending"
	LessonCompleted LessonStatus = "completed"
	LessonSkipped   LessonStatus = "skipped"
)

// Lesson is one delivered chunk of a course.
type Lesson struct {
	ID              string       `db:"id" json:"id"`
	CourseID        string       `db:"course_id" json:"course_id"`
	OrderNumber     int          `db:"order_number" json:"order_number"`
	Title           string       `db:"title" json:"title"`
	Content         string       `db:"content" json:"content"`
	DurationSeconds *int         `db:"duration_seconds" json:"duration_seconds,omitempty"`
	ScheduledFor    time.Time    `db:"scheduled_for" json:"scheduled_for"`
	CompletedAt     *time.Time   `db:"completed_at" json:"completed_at"`
	Status          LessonStatus `db:"status" json:"status"`
}

// DueLesson is a pending lesson joined with the delivery settings of its course.
type DueLesson struct {
	LessonID         string    `db:"lesson_id"`
	CourseID         string    `db:"course_id"`
	CourseName       string    `db:"course_name"`
	OrderNumber      int       `db:"order_number"`
	Title            string    `db:"title"`
	Content          string    `db:"content"`
	ScheduledFor     time.Time `db:"scheduled_for"`
	PhoneNumber      string    `db:"phone_number"`
	DeliverySchedule Schedule  `db:"delivery_schedule"`
	DeliveryTime     string    `db:"delivery_time"`
}
