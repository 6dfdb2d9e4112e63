package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (d *Database) GetRoom(ctx context.Context, roomID uint) (*models.Room, error) {
	var room models.Room
	err := d.db.WithContext(ctx).
		Preload("Members").
		First(&room, "id = ?", roomID).Error
	if err != nil {
		return nil, translate("get room", err)
	}
	return &room, nil
}

func (d *Database) IsMember(ctx context.Context, roomID uint, userID uuid.UUID) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&models.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, translate("is member", err)
	}
	return count > 0, nil
}

// CreateRoom inserts the room and its members in one transaction. The admin,
// if any, is always added as a member.
func (d *Database) CreateRoom(ctx context.Context, room *models.Room, memberIDs []uuid.UUID) error {
	if room.AdminID != nil {
		memberIDs = append([]uuid.UUID{*room.AdminID}, memberIDs...)
	}
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Members", "Admin").Create(room).Error; err != nil {
			return err
		}
		seen := make(map[uuid.UUID]bool, len(memberIDs))
		for _, id := range memberIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			if err := tx.Create(&models.RoomMember{RoomID: room.ID, UserID: id}).Error; err != nil {
				return fmt.Errorf("add member %s: %w", id, err)
			}
		}
		return nil
	})
	return translate("create room", err)
}

func (d *Database) AddMember(ctx context.Context, roomID uint, userID uuid.UUID) error {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return translate("add member", err)
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RoomMember{RoomID: roomID, UserID: userID}).Error
	return translate("add member", err)
}

func (d *Database) ListUserRooms(ctx context.Context, userID uuid.UUID) ([]models.Room, error) {
	var rooms []models.Room
	err := d.db.WithContext(ctx).
		Joins("JOIN room_members rm ON rm.room_id = rooms.id").
		Where("rm.user_id = ?", userID).
		Order("rooms.created_at DESC").
		Preload("Members").
		Find(&rooms).Error
	if err != nil {
		return nil, translate("list user rooms", err)
	}
	return rooms, nil
}

var _ services.RoomStore = (*Database)(nil)
