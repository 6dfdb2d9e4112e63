package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
)

// Identity is the authenticated actor behind a request or a session.
type Identity struct {
	UserID   uuid.UUID
	Username string
}

// MessageStore is the persistence the realtime core depends on.
// Implementations return ErrNotFound for missing rows and wrap every other
// failure with ErrStorageUnavailable.
type MessageStore interface {
	GetRoom(ctx context.Context, roomID uint) (*models.Room, error)
	IsMember(ctx context.Context, roomID uint, userID uuid.UUID) (bool, error)
	CreateMessage(ctx context.Context, roomID uint, senderID uuid.UUID, text, mediaURL *string) (*models.Message, error)
	GetMessage(ctx context.Context, id, roomID uint, excludeDeleted bool) (*models.Message, error)
	AppendEditHistory(ctx context.Context, messageID uint, oldText string, editorID uuid.UUID) (*models.MessageEditHistory, error)
	UpdateMessageText(ctx context.Context, id uint, newText string) (time.Time, error)
	SoftDeleteMessage(ctx context.Context, id uint, deleterID uuid.UUID) error
	// ListRecentMessages returns up to limit of the newest messages, oldest first.
	ListRecentMessages(ctx context.Context, roomID uint, limit int, excludeDeleted bool) ([]models.Message, error)
}

// RoomStore backs the room CRUD endpoints.
type RoomStore interface {
	CreateRoom(ctx context.Context, room *models.Room, memberIDs []uuid.UUID) error
	AddMember(ctx context.Context, roomID uint, userID uuid.UUID) error
	ListUserRooms(ctx context.Context, userID uuid.UUID) ([]models.Room, error)
	ListEditHistory(ctx context.Context, messageID uint) ([]models.MessageEditHistory, error)
	GetMessageByID(ctx context.Context, id uint) (*models.Message, error)
}

type UserStore interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastSeen(ctx context.Context, id uuid.UUID) error
	// SearchUsers matches query case-insensitively anywhere in the username
	// and returns at most limit users ordered by username.
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
}
