package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is soft-deleted only. Text and MediaURL of a deleted message stay in
// storage but are never sent to clients again.
type Message struct {
	ID        uint      `gorm:"primaryKey"`
	RoomID    uint      `gorm:"index;not null"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null"`
	Text      *string   `gorm:"type:text"`
	MediaURL  *string
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
	IsDeleted bool       `gorm:"default:false;index"`
	DeletedBy *uuid.UUID `gorm:"type:uuid"`

	Sender User `gorm:"foreignKey:SenderID"`
	Room   Room `gorm:"foreignKey:RoomID"`
}

// TextValue returns the message text, or "" for a media-only message.
func (m *Message) TextValue() string {
	if m.Text == nil {
		return ""
	}
	return *m.Text
}

// MessageEditHistory stores the text a message had before one edit.
type MessageEditHistory struct {
	ID        uint      `gorm:"primaryKey"`
	MessageID uint      `gorm:"index;not null"`
	OldText   string    `gorm:"type:text;not null"`
	EditedBy  uuid.UUID `gorm:"type:uuid;not null"`
	EditedAt  time.Time `gorm:"index"`

	Editor User `gorm:"foreignKey:EditedBy"`
}
