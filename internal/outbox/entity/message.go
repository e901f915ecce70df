package entity

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one delivery attempt of a lesson to a phone number.
type Message struct {
	ID          string    `db:"id" json:"id"`
	LessonID    string    `db:"lesson_id" json:"lesson_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	PhoneNumber string    `db:"phone_number" json:"phone_number"`
	Body        string    `db:"body" json:"body"`
	Status      Status    `db:"status" json:"status"`
	LastError   string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
