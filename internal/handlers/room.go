package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/thereayou/roomchat/internal/handlers/dto"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

// OnlineLister reports which users currently hold a session in a room.
type OnlineLister interface {
	Online(ctx context.Context, roomID uint) ([]uuid.UUID, error)
}

type RoomHandler struct {
	rooms    services.RoomStore
	messages services.MessageStore
	online   OnlineLister
}

func NewRoomHandler(rooms services.RoomStore, messages services.MessageStore, online OnlineLister) *RoomHandler {
	return &RoomHandler{rooms: rooms, messages: messages, online: online}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

// CreateRoom creates a room with the caller as its first member. The creator
// of a group room becomes its admin.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req dto.CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room := &models.Room{Name: req.Name, IsGroup: req.IsGroup}
	if req.IsGroup {
		room.AdminID = &identity.UserID
	}
	members := lo.Uniq(append([]uuid.UUID{identity.UserID}, req.MemberIDs...))

	ctx := c.Request.Context()
	if err := h.rooms.CreateRoom(ctx, room, members); err != nil {
		respondError(c, err)
		return
	}
	if full, err := h.messages.GetRoom(ctx, room.ID); err == nil {
		room = full
	}

	c.JSON(http.StatusCreated, dto.NewRoomResponse(room))
}

// GetMyRooms lists the rooms the caller belongs to.
func (h *RoomHandler) GetMyRooms(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	rooms, err := h.rooms.ListUserRooms(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms": lo.Map(rooms, func(r models.Room, _ int) dto.RoomResponse {
			return dto.NewRoomResponse(&r)
		}),
	})
}

// AddMember adds a user to a room. Only the admin may add to a group room;
// any member may add to a room without one.
func (h *RoomHandler) AddMember(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	roomID, ok := parseID(c)
	if !ok {
		return
	}

	var req dto.AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	room, err := h.messages.GetRoom(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !room.HasMember(identity.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return
	}
	if room.IsGroup && !room.IsAdmin(identity.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the room admin can add members"})
		return
	}

	if err := h.rooms.AddMember(ctx, roomID, req.UserID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetOnline lists users with a live session in the room.
func (h *RoomHandler) GetOnline(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	roomID, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	member, err := h.messages.IsMember(ctx, roomID, identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return
	}

	users, err := h.online.Online(ctx, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.OnlineResponse{RoomID: roomID, Users: users})
}

// GetEditHistory returns the edit log of a message, newest first.
func (h *RoomHandler) GetEditHistory(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)
	messageID, ok := parseID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	msg, err := h.rooms.GetMessageByID(ctx, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	member, err := h.messages.IsMember(ctx, msg.RoomID, identity.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "you are not a member of this room"})
		return
	}

	records, err := h.rooms.ListEditHistory(ctx, messageID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.EditHistoryResponse{
		MessageID: messageID,
		Edits:     lo.Map(records, func(r models.MessageEditHistory, _ int) dto.EditRecord { return dto.NewEditRecord(r) }),
	})
}
