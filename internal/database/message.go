package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
	"gorm.io/gorm"
)

func (d *Database) CreateMessage(ctx context.Context, roomID uint, senderID uuid.UUID, text, mediaURL *string) (*models.Message, error) {
	now := time.Now().UTC()
	message := &models.Message{
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      text,
		MediaURL:  mediaURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.db.WithContext(ctx).Omit("Sender", "Room").Create(message).Error; err != nil {
		return nil, translate("create message", err)
	}
	return message, nil
}

func (d *Database) GetMessage(ctx context.Context, id, roomID uint, excludeDeleted bool) (*models.Message, error) {
	var message models.Message
	query := d.db.WithContext(ctx).Preload("Sender").Where("id = ? AND room_id = ?", id, roomID)
	if excludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}
	if err := query.First(&message).Error; err != nil {
		return nil, translate("get message", err)
	}
	return &message, nil
}

func (d *Database) GetMessageByID(ctx context.Context, id uint) (*models.Message, error) {
	var message models.Message
	if err := d.db.WithContext(ctx).First(&message, "id = ?", id).Error; err != nil {
		return nil, translate("get message", err)
	}
	return &message, nil
}

func (d *Database) AppendEditHistory(ctx context.Context, messageID uint, oldText string, editorID uuid.UUID) (*models.MessageEditHistory, error) {
	record := &models.MessageEditHistory{
		MessageID: messageID,
		OldText:   oldText,
		EditedBy:  editorID,
		EditedAt:  time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Omit("Editor").Create(record).Error; err != nil {
		return nil, translate("append edit history", err)
	}
	return record, nil
}

// UpdateMessageText never touches a deleted message; it reports ErrNotFound
// instead so a delete racing an edit stays terminal.
func (d *Database) UpdateMessageText(ctx context.Context, id uint, newText string) (time.Time, error) {
	updatedAt := time.Now().UTC()
	res := d.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{"text": newText, "updated_at": updatedAt})
	if res.Error != nil {
		return time.Time{}, translate("update message text", res.Error)
	}
	if res.RowsAffected == 0 {
		return time.Time{}, translate("update message text", gorm.ErrRecordNotFound)
	}
	return updatedAt, nil
}

func (d *Database) SoftDeleteMessage(ctx context.Context, id uint, deleterID uuid.UUID) error {
	res := d.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_by": deleterID,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return translate("soft delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return translate("soft delete message", gorm.ErrRecordNotFound)
	}
	return nil
}

func (d *Database) ListRecentMessages(ctx context.Context, roomID uint, limit int, excludeDeleted bool) ([]models.Message, error) {
	var messages []models.Message

	query := d.db.WithContext(ctx).Where("room_id = ?", roomID)
	if excludeDeleted {
		query = query.Where("is_deleted = ?", false)
	}

	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Preload("Sender").
		Find(&messages).Error
	if err != nil {
		return nil, translate("list recent messages", err)
	}

	// newest were fetched first; clients expect oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (d *Database) ListEditHistory(ctx context.Context, messageID uint) ([]models.MessageEditHistory, error) {
	var history []models.MessageEditHistory
	err := d.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		Order("edited_at DESC").
		Order("id DESC").
		Preload("Editor").
		Find(&history).Error
	if err != nil {
		return nil, translate("list edit history", err)
	}
	return history, nil
}

var _ services.MessageStore = (*Database)(nil)
