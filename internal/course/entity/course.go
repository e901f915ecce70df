package entity

import (
	"io"
	"time"
)

// SourceType is where a course's content comes from.
type SourceType string

const (
	SourceYouTube SourceType = "youtube"
	SourcePDF     SourceType = "pdf"
)

// Schedule is the delivery cadence of a course.
type Schedule string

const (
	ScheduleDaily    Schedule = "daily"
	ScheduleWeekdays Schedule = "weekdays"
	ScheduleWeekends Schedule = "weekends"
	ScheduleCustom   Schedule = "custom"
)

// Includes reports whether the cadence delivers on day.
func (s Schedule) Includes(day time.Weekday) bool {
	switch s {
	case ScheduleWeekdays:
		return day >= time.Monday && day <= time.Friday
	case ScheduleWeekends:
		return day == time.Saturday || day == time.Sunday
	default:
		return true
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// CanTransition reports whether a course may move from one status to another.
// Completed is terminal.
func CanTransition(from, to Status) bool {
	switch to {
	case StatusActive:
		return from == StatusPaused
	case StatusPaused:
		return from == StatusActive
	case StatusCompleted:
		return from == StatusActive || from == StatusPaused
	}
	return false
}

// Course is one learning track owned by a user.
type Course struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	Name             string     `db:"name" json:"name"`
	Type             SourceType `db:"type" json:"type"`
	SourceURL        string     `db:"source_url" json:"source_url"`
	DeliverySchedule Schedule   `db:"delivery_schedule" json:"delivery_schedule"`
	DeliveryTime     string     `db:"delivery_time" json:"delivery_time"`
	TotalLessons     int        `db:"total_lessons" json:"total_lessons"`
	Status           Status     `db:"status" json:"status"`
	PhoneNumber      string     `db:"phone_number" json:"phone_number"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	Lessons          []Lesson   `db:"-" json:"lessons,omitempty"`
}

// Summary is a dashboard row: a course with its progress.
type Summary struct {
	Course
	DoneLessons     int        `db:"done_lessons" json:"done_lessons"`
	NextLessonTitle *string    `db:"next_lesson_title" json:"next_lesson_title,omitempty"`
	NextLessonAt    *time.Time `db:"next_lesson_at" json:"next_lesson_at,omitempty"`
	ProgressPercent int        `db:"-" json:"progress_percent"`
}

// Progress is the share of lessons that are completed or skipped, 0..100.
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}

// Filter selects dashboard rows.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterActive    Filter = "active"
	FilterCompleted Filter = "completed"
)

// CreateInput is what the creation wizard collects. For a document course
// either File or SourceURL must be set.
type CreateInput struct {
	UserID           string     `json:"-" validate:"required"`
	Name             string     `json:"name" validate:"required,max=200"`
	Type             SourceType `json:"type" validate:"required,oneof=youtube pdf"`
	SourceURL        string     `json:"source_url" validate:"omitempty,url"`
	DeliverySchedule Schedule   `json:"delivery_schedule" validate:"required,oneof=daily weekdays weekends custom"`
	DeliveryTime     string     `json:"delivery_time" validate:"required,datetime=15:04"`
	PhoneNumber      string     `json:"phone_number" validate:"required,e164"`

	FileName string    `json:"-"`
	File     io.Reader `json:"-"`
}
