package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can own sessions and post into rooms.
// LastSeenAt stays nil until the first successful login.
type User struct {
	ID           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Username     string     `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"not null" json:"-"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// MarkSeen records a login at t, normalised to UTC.
func (u *User) MarkSeen(t time.Time) {
	seen := t.UTC()
	u.LastSeenAt = &seen
}
