package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

func TestDecodeFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte(`{"type":"new_message","text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, &NewMessageFrame{Text: "hi"}, frame)

	frame, err = DecodeFrame([]byte(`{"type":"new_message","text":"","media":"https://x/y.png"}`))
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.png", frame.(*NewMessageFrame).Media)

	frame, err = DecodeFrame([]byte(`{"type":"edit_message","message_id":4,"new_text":""}`))
	require.NoError(t, err)
	edit := frame.(*EditMessageFrame)
	assert.Equal(t, uint(4), edit.MessageID)
	require.NotNil(t, edit.NewText)
	assert.Equal(t, "", *edit.NewText)

	frame, err = DecodeFrame([]byte(`{"type":"delete_message","message_id":9}`))
	require.NoError(t, err)
	assert.Equal(t, &DeleteMessageFrame{MessageID: 9}, frame)
}

func TestDecodeFrame_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":           `hello`,
		"missing type":       `{"text":"hi"}`,
		"unknown type":       `{"type":"typing"}`,
		"text not a string":  `{"type":"new_message","text":5}`,
		"id as string":       `{"type":"delete_message","message_id":"9"}`,
		"negative id":        `{"type":"delete_message","message_id":-1}`,
		"missing id":         `{"type":"delete_message"}`,
		"edit without text":  `{"type":"edit_message","message_id":1}`,
		"edit without id":    `{"type":"edit_message","new_text":"x"}`,
		"array payload":      `[1,2]`,
		"type of wrong kind": `{"type":3}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeFrame([]byte(raw))
			assert.ErrorIs(t, err, services.ErrMalformedFrame)
		})
	}
}

func TestEvents_WireShape(t *testing.T) {
	created := time.Date(2024, 3, 5, 14, 7, 9, 0, time.FixedZone("X", 3*3600))
	text := "hi"
	msg := &models.Message{ID: 12, Text: &text, CreatedAt: created, Sender: models.User{Username: "bob"}}

	data, err := EncodeEvent(NewChatMessageEvent(msg, ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"chat_message","message_id":12,"sender":"bob","text":"hi","created_at":"2024-03-05 11:07:09"}`, string(data))

	media := "/media/a.png"
	data, err = EncodeEvent(NewChatMessageEvent(&models.Message{ID: 13, MediaURL: &media, CreatedAt: created}, "ann"))
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "", got["text"])
	assert.Equal(t, "/media/a.png", got["media_url"])
	assert.Equal(t, "ann", got["sender"])

	data, err = EncodeEvent(NewMessageEditedEvent(12, "hello", "ann", created))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_edited","message_id":12,"new_text":"hello","edited_by":"ann","edited_at":"2024-03-05 11:07:09"}`, string(data))

	data, err = EncodeEvent(NewMessageDeletedEvent(12, "ann"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_deleted","message_id":12,"deleted_by":"ann"}`, string(data))
}

func TestErrorEvent_HidesInternals(t *testing.T) {
	assert.Equal(t, "storage unavailable", NewErrorEvent(services.ErrStorageUnavailable).Message)
	assert.Equal(t, "internal error", NewErrorEvent(assert.AnError).Message)
	assert.Equal(t, services.ErrEmptyMessage.Error(), NewErrorEvent(services.ErrEmptyMessage).Message)
}

func TestCloseCodeFor(t *testing.T) {
	assert.Equal(t, CloseUnauthenticated, CloseCodeFor(services.ErrUnauthenticated))
	assert.Equal(t, CloseNotMember, CloseCodeFor(services.ErrForbidden))
	assert.Equal(t, CloseNotMember, CloseCodeFor(services.ErrNotFound))
	assert.Equal(t, CloseRegistrationTimeout, CloseCodeFor(services.ErrRegistrationTimeout))
	assert.Equal(t, CloseInternalError, CloseCodeFor(services.ErrStorageUnavailable))
}
