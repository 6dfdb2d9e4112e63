package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/roomchat/internal/database"
	"github.com/thereayou/roomchat/internal/media"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/services/mocks"
	"github.com/thereayou/roomchat/internal/websocket"
)

type roomFixture struct {
	store   *database.MemoryStore
	hub     *websocket.Hub
	handler *MessageHandler
	room    *models.Room
	alice   services.Identity // admin
	bob     services.Identity
	carol   services.Identity
}

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, raw string) (string, error) {
	return "/media/" + raw, nil
}

func (stubResolver) Discard(context.Context, string, string) error { return nil }

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func saveUser(t *testing.T, store *database.MemoryStore, name string) services.Identity {
	t.Helper()
	u := &models.User{Username: name, Email: name + "@example.com", PasswordHash: "x"}
	require.NoError(t, store.SaveUser(context.Background(), u))
	return services.Identity{UserID: u.ID, Username: name}
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()
	store := database.NewMemoryStore()
	f := &roomFixture{store: store, hub: websocket.NewHub(nil, quietLogger())}
	f.alice = saveUser(t, store, "alice")
	f.bob = saveUser(t, store, "bob")
	f.carol = saveUser(t, store, "carol")

	f.room = &models.Room{Name: "general", IsGroup: true, AdminID: &f.alice.UserID}
	require.NoError(t, store.CreateRoom(context.Background(), f.room, []uuid.UUID{f.bob.UserID, f.carol.UserID}))

	f.handler = NewMessageHandler(store, f.hub, stubResolver{})
	return f
}

func (f *roomFixture) join(t *testing.T, id services.Identity) *websocket.Client {
	t.Helper()
	c := websocket.NewClient(f.hub, nil, f.room.ID, id, websocket.SessionConfig{})
	require.NoError(t, f.hub.Subscribe(context.Background(), c, nil))
	return c
}

func (f *roomFixture) send(c *websocket.Client, raw string) error {
	frame, err := websocket.DecodeFrame([]byte(raw))
	if err != nil {
		return err
	}
	return f.handler.HandleFrame(context.Background(), c, frame)
}

func nextEvent(t *testing.T, c *websocket.Client) map[string]any {
	t.Helper()
	select {
	case data := <-c.Outbound():
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	case <-time.After(time.Second):
		t.Fatal("no event")
		return nil
	}
}

func (f *roomFixture) post(t *testing.T, c *websocket.Client, text string) uint {
	t.Helper()
	require.NoError(t, f.send(c, fmt.Sprintf(`{"type":"new_message","text":%q}`, text)))
	evt := nextEvent(t, c)
	require.Equal(t, "chat_message", evt["type"])
	return uint(evt["message_id"].(float64))
}

func TestNewMessage_BroadcastsToRoom(t *testing.T) {
	f := newRoomFixture(t)
	a := f.join(t, f.alice)
	b := f.join(t, f.bob)

	require.NoError(t, f.send(b, `{"type":"new_message","text":"hi"}`))

	for _, c := range []*websocket.Client{a, b} {
		evt := nextEvent(t, c)
		assert.Equal(t, "chat_message", evt["type"])
		assert.Equal(t, "hi", evt["text"])
		assert.Equal(t, "bob", evt["sender"])
		assert.NotContains(t, evt, "media_url")
	}

	msgs, err := f.store.ListRecentMessages(context.Background(), f.room.ID, 50, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, f.bob.UserID, msgs[0].SenderID)
}

func TestNewMessage_MediaOnly(t *testing.T) {
	f := newRoomFixture(t)
	a := f.join(t, f.alice)

	require.NoError(t, f.send(a, `{"type":"new_message","text":"","media":"cat.png"}`))

	evt := nextEvent(t, a)
	assert.Equal(t, "", evt["text"])
	assert.Equal(t, "/media/cat.png", evt["media_url"])
}

func TestNewMessage_MediaKeepsTextAsSent(t *testing.T) {
	f := newRoomFixture(t)
	a := f.join(t, f.alice)

	require.NoError(t, f.send(a, `{"type":"new_message","text":"  ","media":"cat.png"}`))

	evt := nextEvent(t, a)
	assert.Equal(t, "  ", evt["text"])
	assert.Equal(t, "/media/cat.png", evt["media_url"])

	msgs, err := f.store.ListRecentMessages(context.Background(), f.room.ID, 50, true)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Text)
	assert.Equal(t, "  ", *msgs[0].Text)
}

func TestNewMessage_Empty(t *testing.T) {
	f := newRoomFixture(t)
	a := f.join(t, f.alice)

	for _, raw := range []string{
		`{"type":"new_message","text":""}`,
		`{"type":"new_message","text":"   "}`,
		`{"type":"new_message"}`,
	} {
		assert.ErrorIs(t, f.send(a, raw), services.ErrEmptyMessage)
	}

	assert.Empty(t, a.Outbound())
	msgs, err := f.store.ListRecentMessages(context.Background(), f.room.ID, 50, false)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestEditMessage_RecordsEveryPriorText(t *testing.T) {
	f := newRoomFixture(t)
	b := f.join(t, f.bob)
	id := f.post(t, b, "v0")

	for i := 1; i <= 3; i++ {
		require.NoError(t, f.send(b, fmt.Sprintf(`{"type":"edit_message","message_id":%d,"new_text":"v%d"}`, id, i)))
		evt := nextEvent(t, b)
		assert.Equal(t, "message_edited", evt["type"])
		assert.Equal(t, fmt.Sprintf("v%d", i), evt["new_text"])
		assert.Equal(t, "bob", evt["edited_by"])
	}

	history, err := f.store.ListEditHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	// newest first
	assert.Equal(t, []string{"v2", "v1", "v0"}, []string{history[0].OldText, history[1].OldText, history[2].OldText})

	msg, err := f.store.GetMessage(context.Background(), id, f.room.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "v3", msg.TextValue())
}

func TestEditMessage_AdminMayEditOthers(t *testing.T) {
	f := newRoomFixture(t)
	a := f.join(t, f.alice)
	b := f.join(t, f.bob)

	require.NoError(t, f.send(b, `{"type":"new_message","text":"hi"}`))
	id := uint(nextEvent(t, a)["message_id"].(float64))
	nextEvent(t, b)

	require.NoError(t, f.send(a, fmt.Sprintf(`{"type":"edit_message","message_id":%d,"new_text":"hello"}`, id)))
	for _, c := range []*websocket.Client{a, b} {
		evt := nextEvent(t, c)
		assert.Equal(t, "message_edited", evt["type"])
		assert.Equal(t, "hello", evt["new_text"])
		assert.Equal(t, "alice", evt["edited_by"])
	}

	history, err := f.store.ListEditHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].OldText)
	assert.Equal(t, f.alice.UserID, history[0].EditedBy)
}

func TestEditMessage_ForbiddenLeavesMessageUntouched(t *testing.T) {
	f := newRoomFixture(t)
	b := f.join(t, f.bob)
	c := f.join(t, f.carol)

	id := f.post(t, b, "mine")
	nextEvent(t, c)

	err := f.send(c, fmt.Sprintf(`{"type":"edit_message","message_id":%d,"new_text":"yours"}`, id))
	assert.ErrorIs(t, err, services.ErrForbidden)
	err = f.send(c, fmt.Sprintf(`{"type":"delete_message","message_id":%d}`, id))
	assert.ErrorIs(t, err, services.ErrForbidden)

	assert.Empty(t, b.Outbound())
	assert.Empty(t, c.Outbound())

	msg, err := f.store.GetMessage(context.Background(), id, f.room.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "mine", msg.TextValue())
	history, err := f.store.ListEditHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEditMessage_EmptyText(t *testing.T) {
	f := newRoomFixture(t)
	b := f.join(t, f.bob)
	id := f.post(t, b, "hi")

	err := f.send(b, fmt.Sprintf(`{"type":"edit_message","message_id":%d,"new_text":" "}`, id))
	assert.ErrorIs(t, err, services.ErrEmptyMessage)

	history, err := f.store.ListEditHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestEditMessage_OtherRoomIsNotFound(t *testing.T) {
	f := newRoomFixture(t)
	b := f.join(t, f.bob)
	id := f.post(t, b, "hi")

	otherRoom := &models.Room{Name: "side", IsGroup: false}
	require.NoError(t, f.store.CreateRoom(context.Background(), otherRoom, []uuid.UUID{f.bob.UserID}))
	side := websocket.NewClient(f.hub, nil, otherRoom.ID, f.bob, websocket.SessionConfig{})

	err := f.send(side, fmt.Sprintf(`{"type":"edit_message","message_id":%d,"new_text":"x"}`, id))
	assert.ErrorIs(t, err, services.ErrNotFound)
	err = f.send(side, `{"type":"delete_message","message_id":999}`)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestDeleteMessage_IsTerminal(t *testing.T) {
	f := newRoomFixture(t)
	a := f.join(t, f.alice)
	b := f.join(t, f.bob)

	require.NoError(t, f.send(b, `{"type":"new_message","text":"oops"}`))
	id := uint(nextEvent(t, a)["message_id"].(float64))
	nextEvent(t, b)

	require.NoError(t, f.send(b, fmt.Sprintf(`{"type":"delete_message","message_id":%d}`, id)))
	for _, c := range []*websocket.Client{a, b} {
		evt := nextEvent(t, c)
		assert.Equal(t, "message_deleted", evt["type"])
		assert.Equal(t, float64(id), evt["message_id"])
		assert.Equal(t, "bob", evt["deleted_by"])
	}

	err := f.send(a, fmt.Sprintf(`{"type":"edit_message","message_id":%d,"new_text":"back"}`, id))
	assert.ErrorIs(t, err, services.ErrNotFound)
	err = f.send(b, fmt.Sprintf(`{"type":"delete_message","message_id":%d}`, id))
	assert.ErrorIs(t, err, services.ErrNotFound)
	assert.Empty(t, a.Outbound())

	stored, err := f.store.GetMessageByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, "oops", stored.TextValue())
	require.NotNil(t, stored.DeletedBy)
	assert.Equal(t, f.bob.UserID, *stored.DeletedBy)

	history, err := f.store.ListEditHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)

	recent, err := f.store.ListRecentMessages(context.Background(), f.room.ID, 50, true)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestEditMessage_HistoryFailureStopsOverwrite(t *testing.T) {
	store := new(mocks.MessageStore)
	hub := websocket.NewHub(nil, quietLogger())
	h := NewMessageHandler(store, hub, nil)

	editor := services.Identity{UserID: uuid.New(), Username: "ann"}
	text := "before"
	msg := &models.Message{ID: 3, RoomID: 1, SenderID: editor.UserID, Text: &text}
	client := websocket.NewClient(hub, nil, 1, editor, websocket.SessionConfig{})
	require.NoError(t, hub.Subscribe(context.Background(), client, nil))

	store.On("GetMessage", mock.Anything, uint(3), uint(1), true).Return(msg, nil).Once()
	store.On("GetRoom", mock.Anything, uint(1)).Return(&models.Room{ID: 1}, nil).Once()
	store.On("AppendEditHistory", mock.Anything, uint(3), "before", editor.UserID).
		Return(nil, fmt.Errorf("append: %w", services.ErrStorageUnavailable)).Once()

	newText := "after"
	err := h.HandleFrame(context.Background(), client, &websocket.EditMessageFrame{MessageID: 3, NewText: &newText})
	assert.ErrorIs(t, err, services.ErrStorageUnavailable)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "UpdateMessageText", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, client.Outbound())
}

func TestNewMessage_StorageFailureIsReported(t *testing.T) {
	store := new(mocks.MessageStore)
	hub := websocket.NewHub(nil, quietLogger())
	h := NewMessageHandler(store, hub, nil)

	client := websocket.NewClient(hub, nil, 1, services.Identity{UserID: uuid.New()}, websocket.SessionConfig{})
	require.NoError(t, hub.Subscribe(context.Background(), client, nil))

	store.On("CreateMessage", mock.Anything, uint(1), client.Identity.UserID, mock.Anything, mock.Anything).
		Return(nil, services.ErrStorageUnavailable).Once()

	err := h.HandleFrame(context.Background(), client, &websocket.NewMessageFrame{Text: "hi"})
	assert.True(t, errors.Is(err, services.ErrStorageUnavailable))
	assert.Empty(t, client.Outbound())

	err = h.HandleFrame(context.Background(), client, &websocket.NewMessageFrame{Media: "x"})
	assert.ErrorIs(t, err, services.ErrMalformedFrame)
}

func TestNewMessage_StorageFailureDiscardsMedia(t *testing.T) {
	store := new(mocks.MessageStore)
	hub := websocket.NewHub(nil, quietLogger())
	dir := t.TempDir()
	resolver, err := media.NewLocalStore(dir, "/media/", 1024)
	require.NoError(t, err)
	h := NewMessageHandler(store, hub, resolver)

	client := websocket.NewClient(hub, nil, 1, services.Identity{UserID: uuid.New()}, websocket.SessionConfig{})
	require.NoError(t, hub.Subscribe(context.Background(), client, nil))

	store.On("CreateMessage", mock.Anything, uint(1), client.Identity.UserID, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("insert: %w", services.ErrStorageUnavailable)).Once()

	raw := "data:text/plain;base64," + base64.StdEncoding.EncodeToString([]byte("hello"))
	err = h.HandleFrame(context.Background(), client, &websocket.NewMessageFrame{Media: raw})
	require.ErrorIs(t, err, services.ErrStorageUnavailable)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	store.AssertExpectations(t)
}

func createRoom(t *testing.T, store *database.MemoryStore, members ...uuid.UUID) uint {
	t.Helper()
	room := &models.Room{Name: "room"}
	require.NoError(t, store.CreateRoom(context.Background(), room, members))
	return room.ID
}
