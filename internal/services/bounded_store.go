package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"golang.org/x/sync/semaphore"
)

// BoundedStore runs every call of the wrapped MessageStore through a
// semaphore-limited gate with a per-call deadline. Timeouts and cancellations
// surface as ErrStorageUnavailable.
type BoundedStore struct {
	inner   MessageStore
	slots   *semaphore.Weighted
	timeout time.Duration
}

func NewBoundedStore(inner MessageStore, concurrency int64, timeout time.Duration) *BoundedStore {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &BoundedStore{
		inner:   inner,
		slots:   semaphore.NewWeighted(concurrency),
		timeout: timeout,
	}
}

func (s *BoundedStore) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%s: waiting for store slot: %w: %v", op, ErrStorageUnavailable, err)
	}
	defer s.slots.Release(1)

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		if !errors.Is(err, ErrStorageUnavailable) {
			return fmt.Errorf("%s: %w: %v", op, ErrStorageUnavailable, err)
		}
	}
	return err
}

func (s *BoundedStore) GetRoom(ctx context.Context, roomID uint) (room *models.Room, err error) {
	err = s.run(ctx, "get room", func(ctx context.Context) error {
		room, err = s.inner.GetRoom(ctx, roomID)
		return err
	})
	return room, err
}

func (s *BoundedStore) IsMember(ctx context.Context, roomID uint, userID uuid.UUID) (ok bool, err error) {
	err = s.run(ctx, "is member", func(ctx context.Context) error {
		ok, err = s.inner.IsMember(ctx, roomID, userID)
		return err
	})
	return ok, err
}

func (s *BoundedStore) CreateMessage(ctx context.Context, roomID uint, senderID uuid.UUID, text, mediaURL *string) (msg *models.Message, err error) {
	err = s.run(ctx, "create message", func(ctx context.Context) error {
		msg, err = s.inner.CreateMessage(ctx, roomID, senderID, text, mediaURL)
		return err
	})
	return msg, err
}

func (s *BoundedStore) GetMessage(ctx context.Context, id, roomID uint, excludeDeleted bool) (msg *models.Message, err error) {
	err = s.run(ctx, "get message", func(ctx context.Context) error {
		msg, err = s.inner.GetMessage(ctx, id, roomID, excludeDeleted)
		return err
	})
	return msg, err
}

func (s *BoundedStore) AppendEditHistory(ctx context.Context, messageID uint, oldText string, editorID uuid.UUID) (rec *models.MessageEditHistory, err error) {
	err = s.run(ctx, "append edit history", func(ctx context.Context) error {
		rec, err = s.inner.AppendEditHistory(ctx, messageID, oldText, editorID)
		return err
	})
	return rec, err
}

func (s *BoundedStore) UpdateMessageText(ctx context.Context, id uint, newText string) (updatedAt time.Time, err error) {
	err = s.run(ctx, "update message text", func(ctx context.Context) error {
		updatedAt, err = s.inner.UpdateMessageText(ctx, id, newText)
		return err
	})
	return updatedAt, err
}

func (s *BoundedStore) SoftDeleteMessage(ctx context.Context, id uint, deleterID uuid.UUID) error {
	return s.run(ctx, "soft delete message", func(ctx context.Context) error {
		return s.inner.SoftDeleteMessage(ctx, id, deleterID)
	})
}

func (s *BoundedStore) ListRecentMessages(ctx context.Context, roomID uint, limit int, excludeDeleted bool) (msgs []models.Message, err error) {
	err = s.run(ctx, "list recent messages", func(ctx context.Context) error {
		msgs, err = s.inner.ListRecentMessages(ctx, roomID, limit, excludeDeleted)
		return err
	})
	return msgs, err
}
