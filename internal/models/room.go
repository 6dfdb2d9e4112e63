package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a chat conversation. AdminID, when set, always points at a member.
type Room struct {
	ID        uint       `gorm:"primaryKey"`
	Name      string     `gorm:"not null"`
	IsGroup   bool       `gorm:"default:false"`
	AdminID   *uuid.UUID `gorm:"type:uuid"`
	CreatedAt time.Time

	Members []User `gorm:"many2many:room_members"`
	Admin   *User  `gorm:"foreignKey:AdminID;constraint:OnDelete:SET NULL"`
}

// RoomMember is the join row behind Room.Members. JoinedAt keeps the
// insertion order of the member set.
type RoomMember struct {
	RoomID   uint      `gorm:"primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	JoinedAt time.Time `gorm:"autoCreateTime"`
}

// IsAdmin reports whether userID is the room's admin.
func (r *Room) IsAdmin(userID uuid.UUID) bool {
	return r.AdminID != nil && *r.AdminID == userID
}

func (r *Room) HasMember(userID uuid.UUID) bool {
	for _, m := range r.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}
