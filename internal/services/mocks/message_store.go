package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/thereayou/roomchat/internal/models"
)

// MessageStore is a testify mock of services.MessageStore.
type MessageStore struct {
	mock.Mock
}

func (m *MessageStore) GetRoom(ctx context.Context, roomID uint) (*models.Room, error) {
	args := m.Called(ctx, roomID)
	room, _ := args.Get(0).(*models.Room)
	return room, args.Error(1)
}

func (m *MessageStore) IsMember(ctx context.Context, roomID uint, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *MessageStore) CreateMessage(ctx context.Context, roomID uint, senderID uuid.UUID, text, mediaURL *string) (*models.Message, error) {
	args := m.Called(ctx, roomID, senderID, text, mediaURL)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MessageStore) GetMessage(ctx context.Context, id, roomID uint, excludeDeleted bool) (*models.Message, error) {
	args := m.Called(ctx, id, roomID, excludeDeleted)
	msg, _ := args.Get(0).(*models.Message)
	return msg, args.Error(1)
}

func (m *MessageStore) AppendEditHistory(ctx context.Context, messageID uint, oldText string, editorID uuid.UUID) (*models.MessageEditHistory, error) {
	args := m.Called(ctx, messageID, oldText, editorID)
	rec, _ := args.Get(0).(*models.MessageEditHistory)
	return rec, args.Error(1)
}

func (m *MessageStore) UpdateMessageText(ctx context.Context, id uint, newText string) (time.Time, error) {
	args := m.Called(ctx, id, newText)
	updatedAt, _ := args.Get(0).(time.Time)
	return updatedAt, args.Error(1)
}

func (m *MessageStore) SoftDeleteMessage(ctx context.Context, id uint, deleterID uuid.UUID) error {
	args := m.Called(ctx, id, deleterID)
	return args.Error(0)
}

func (m *MessageStore) ListRecentMessages(ctx context.Context, roomID uint, limit int, excludeDeleted bool) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit, excludeDeleted)
	msgs, _ := args.Get(0).([]models.Message)
	return msgs, args.Error(1)
}
