package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/media"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/policy"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
)

type frameFunc func(ctx context.Context, client *websocket.Client, frame websocket.Frame) error

// MessageHandler executes chat frames for active sessions. Every mutation
// runs through Hub.Publish so its broadcast is ordered with the store write.
type MessageHandler struct {
	store    services.MessageStore
	hub      *websocket.Hub
	media    media.Resolver
	handlers map[websocket.FrameType]frameFunc
	log      *logrus.Entry
}

func NewMessageHandler(store services.MessageStore, hub *websocket.Hub, resolver media.Resolver) *MessageHandler {
	h := &MessageHandler{
		store: store,
		hub:   hub,
		media: resolver,
		log:   logrus.WithField("component", "message_handler"),
	}
	h.handlers = map[websocket.FrameType]frameFunc{
		websocket.FrameNewMessage:    h.handleNewMessage,
		websocket.FrameEditMessage:   h.handleEditMessage,
		websocket.FrameDeleteMessage: h.handleDeleteMessage,
	}
	return h
}

func (h *MessageHandler) HandleFrame(ctx context.Context, client *websocket.Client, frame websocket.Frame) error {
	fn, ok := h.handlers[frame.Type()]
	if !ok {
		return fmt.Errorf("%w: unsupported type %q", services.ErrMalformedFrame, frame.Type())
	}
	return fn(ctx, client, frame)
}

func (h *MessageHandler) handleNewMessage(ctx context.Context, client *websocket.Client, frame websocket.Frame) error {
	f := frame.(*websocket.NewMessageFrame)

	hasText := strings.TrimSpace(f.Text) != ""
	hasMedia := strings.TrimSpace(f.Media) != ""
	if !hasText && !hasMedia {
		return services.ErrEmptyMessage
	}

	// Whitespace only counts as absent for the emptiness check; whatever
	// text came with media is stored as sent.
	var text, mediaURL *string
	if f.Text != "" {
		text = &f.Text
	}
	if hasMedia {
		if h.media == nil {
			return fmt.Errorf("%w: media is not accepted", services.ErrMalformedFrame)
		}
		locator, err := h.media.Resolve(ctx, f.Media)
		if err != nil {
			return err
		}
		mediaURL = &locator
	}

	err := h.hub.Publish(ctx, client.RoomID, func(ctx context.Context) (websocket.Event, error) {
		msg, err := h.store.CreateMessage(ctx, client.RoomID, client.Identity.UserID, text, mediaURL)
		if err != nil {
			return nil, err
		}
		h.log.WithFields(logrus.Fields{
			"room_id":    client.RoomID,
			"message_id": msg.ID,
			"user_id":    client.Identity.UserID,
		}).Debug("message created")
		return websocket.NewChatMessageEvent(msg, client.Identity.Username), nil
	})
	if err != nil && mediaURL != nil {
		if derr := h.media.Discard(context.WithoutCancel(ctx), f.Media, *mediaURL); derr != nil {
			h.log.WithError(derr).WithField("room_id", client.RoomID).Warn("orphaned media")
		}
	}
	return err
}

func (h *MessageHandler) handleEditMessage(ctx context.Context, client *websocket.Client, frame websocket.Frame) error {
	f := frame.(*websocket.EditMessageFrame)

	newText := *f.NewText
	if strings.TrimSpace(newText) == "" {
		return services.ErrEmptyMessage
	}

	return h.hub.Publish(ctx, client.RoomID, func(ctx context.Context) (websocket.Event, error) {
		msg, err := h.authorize(ctx, client, f.MessageID, "edit")
		if err != nil {
			return nil, err
		}

		// The prior text must be on record before it is overwritten.
		if _, err := h.store.AppendEditHistory(ctx, msg.ID, msg.TextValue(), client.Identity.UserID); err != nil {
			return nil, err
		}
		editedAt, err := h.store.UpdateMessageText(ctx, msg.ID, newText)
		if err != nil {
			return nil, err
		}

		h.log.WithFields(logrus.Fields{
			"room_id":    client.RoomID,
			"message_id": msg.ID,
			"user_id":    client.Identity.UserID,
		}).Debug("message edited")
		return websocket.NewMessageEditedEvent(msg.ID, newText, client.Identity.Username, editedAt), nil
	})
}

func (h *MessageHandler) handleDeleteMessage(ctx context.Context, client *websocket.Client, frame websocket.Frame) error {
	f := frame.(*websocket.DeleteMessageFrame)

	return h.hub.Publish(ctx, client.RoomID, func(ctx context.Context) (websocket.Event, error) {
		msg, err := h.authorize(ctx, client, f.MessageID, "delete")
		if err != nil {
			return nil, err
		}
		if err := h.store.SoftDeleteMessage(ctx, msg.ID, client.Identity.UserID); err != nil {
			return nil, err
		}

		h.log.WithFields(logrus.Fields{
			"room_id":    client.RoomID,
			"message_id": msg.ID,
			"user_id":    client.Identity.UserID,
		}).Debug("message deleted")
		return websocket.NewMessageDeletedEvent(msg.ID, client.Identity.Username), nil
	})
}

// authorize loads a live message of the session's room and checks that the
// session may change it.
func (h *MessageHandler) authorize(ctx context.Context, client *websocket.Client, messageID uint, action string) (*models.Message, error) {
	msg, err := h.store.GetMessage(ctx, messageID, client.RoomID, true)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, fmt.Errorf("%w: message %d", services.ErrNotFound, messageID)
		}
		return nil, err
	}

	room, err := h.store.GetRoom(ctx, client.RoomID)
	if err != nil {
		return nil, err
	}
	if !policy.CanMutate(client.Identity.UserID, msg, room) {
		return nil, fmt.Errorf("%w: only the sender or the room admin can %s this message", services.ErrForbidden, action)
	}
	return msg, nil
}
