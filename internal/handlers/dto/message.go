package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
)

type UserInfo struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

type UserSearchResponse struct {
	Users []UserInfo `json:"users"`
}

type EditRecord struct {
	ID       uint      `json:"id"`
	OldText  string    `json:"old_text"`
	EditedBy UserInfo  `json:"edited_by"`
	EditedAt time.Time `json:"edited_at"`
}

type EditHistoryResponse struct {
	MessageID uint         `json:"message_id"`
	Edits     []EditRecord `json:"edits"`
}

func NewEditRecord(rec models.MessageEditHistory) EditRecord {
	return EditRecord{
		ID:       rec.ID,
		OldText:  rec.OldText,
		EditedBy: UserInfo{ID: rec.EditedBy, Username: rec.Editor.Username},
		EditedAt: rec.EditedAt,
	}
}
