package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/thereayou/roomchat/internal/models"
)

type CreateRoomRequest struct {
	Name      string      `json:"name" binding:"required,max=255"`
	IsGroup   bool        `json:"is_group"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type AddMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type RoomResponse struct {
	ID        uint       `json:"id"`
	Name      string     `json:"name"`
	IsGroup   bool       `json:"is_group"`
	AdminID   *uuid.UUID `json:"admin_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Members   []UserInfo `json:"members"`
}

type OnlineResponse struct {
	RoomID uint        `json:"room_id"`
	Users  []uuid.UUID `json:"users"`
}

func NewRoomResponse(room *models.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		Name:      room.Name,
		IsGroup:   room.IsGroup,
		AdminID:   room.AdminID,
		CreatedAt: room.CreatedAt,
		Members: lo.Map(room.Members, func(u models.User, _ int) UserInfo {
			return UserInfo{ID: u.ID, Username: u.Username}
		}),
	}
}
