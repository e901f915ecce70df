package entity

import "time"

// Account is the learner profile keyed by the identity id issued at sign-up.
type Account struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Name         string    `db:"name" json:"name"`
	Subscription string    `db:"subscription" json:"subscription"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ProfileUpdate carries the mutable profile fields; nil means unchanged.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool { return u.Name == nil && u.Email == nil }
