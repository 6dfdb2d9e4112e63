package websocket

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

// TimeLayout is the timestamp format used on the wire.
const TimeLayout = "2006-01-02 15:04:05"

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FrameType is the discriminator of an inbound frame.
type FrameType string

const (
	FrameNewMessage    FrameType = "new_message"
	FrameEditMessage   FrameType = "edit_message"
	FrameDeleteMessage FrameType = "delete_message"
)

// Frame is one decoded client frame. Each kind has its own struct.
type Frame interface {
	Type() FrameType
}

type NewMessageFrame struct {
	Text  string `json:"text"`
	Media string `json:"media,omitempty"`
}

type EditMessageFrame struct {
	MessageID uint    `json:"message_id" validate:"required"`
	NewText   *string `json:"new_text" validate:"required"`
}

type DeleteMessageFrame struct {
	MessageID uint `json:"message_id" validate:"required"`
}

func (NewMessageFrame) Type() FrameType    { return FrameNewMessage }
func (EditMessageFrame) Type() FrameType   { return FrameEditMessage }
func (DeleteMessageFrame) Type() FrameType { return FrameDeleteMessage }

var frameFactories = map[FrameType]func() Frame{
	FrameNewMessage:    func() Frame { return &NewMessageFrame{} },
	FrameEditMessage:   func() Frame { return &EditMessageFrame{} },
	FrameDeleteMessage: func() Frame { return &DeleteMessageFrame{} },
}

var frameValidator = validator.New()

type envelope struct {
	Type FrameType `json:"type"`
}

// DecodeFrame parses a raw client frame. Every failure wraps
// services.ErrMalformedFrame.
func DecodeFrame(data []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: invalid json", services.ErrMalformedFrame)
	}

	factory, ok := frameFactories[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: unknown type %q", services.ErrMalformedFrame, env.Type)
	}

	frame := factory()
	if err := json.Unmarshal(data, frame); err != nil {
		return nil, fmt.Errorf("%w: invalid %s payload", services.ErrMalformedFrame, env.Type)
	}
	if err := frameValidator.Struct(frame); err != nil {
		return nil, fmt.Errorf("%w: %s requires message_id and its fields", services.ErrMalformedFrame, env.Type)
	}
	return frame, nil
}

// EventType is the discriminator of an outbound event.
type EventType string

const (
	EventChatMessage    EventType = "chat_message"
	EventMessageEdited  EventType = "message_edited"
	EventMessageDeleted EventType = "message_deleted"
	EventError          EventType = "error"
)

type Event interface {
	EventType() EventType
}

type ChatMessageEvent struct {
	Type      EventType `json:"type"`
	MessageID uint      `json:"message_id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	MediaURL  *string   `json:"media_url,omitempty"`
	CreatedAt string    `json:"created_at"`
}

type MessageEditedEvent struct {
	Type      EventType `json:"type"`
	MessageID uint      `json:"message_id"`
	NewText   string    `json:"new_text"`
	EditedBy  string    `json:"edited_by"`
	EditedAt  string    `json:"edited_at"`
}

type MessageDeletedEvent struct {
	Type      EventType `json:"type"`
	MessageID uint      `json:"message_id"`
	DeletedBy string    `json:"deleted_by"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}

func (ChatMessageEvent) EventType() EventType    { return EventChatMessage }
func (MessageEditedEvent) EventType() EventType  { return EventMessageEdited }
func (MessageDeletedEvent) EventType() EventType { return EventMessageDeleted }
func (ErrorEvent) EventType() EventType          { return EventError }

// NewChatMessageEvent builds the event for msg. sender is the display name;
// when empty the preloaded sender username is used.
func NewChatMessageEvent(msg *models.Message, sender string) ChatMessageEvent {
	if sender == "" {
		sender = msg.Sender.Username
	}
	return ChatMessageEvent{
		Type:      EventChatMessage,
		MessageID: msg.ID,
		Sender:    sender,
		Text:      msg.TextValue(),
		MediaURL:  msg.MediaURL,
		CreatedAt: FormatTime(msg.CreatedAt),
	}
}

func NewMessageEditedEvent(messageID uint, newText, editor string, editedAt time.Time) MessageEditedEvent {
	return MessageEditedEvent{
		Type:      EventMessageEdited,
		MessageID: messageID,
		NewText:   newText,
		EditedBy:  editor,
		EditedAt:  FormatTime(editedAt),
	}
}

func NewMessageDeletedEvent(messageID uint, deleter string) MessageDeletedEvent {
	return MessageDeletedEvent{
		Type:      EventMessageDeleted,
		MessageID: messageID,
		DeletedBy: deleter,
	}
}

func NewErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: ErrorMessage(err)}
}

func EncodeEvent(e Event) ([]byte, error) {
	return json.Marshal(e)
}
