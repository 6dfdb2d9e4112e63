package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/roomchat/internal/database"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
	"github.com/thereayou/roomchat/pkg/auth"
)

type chatServer struct {
	store *database.MemoryStore
	hub   *websocket.Hub
	jwt   *auth.JWTManager
	url   string
}

func newChatServer(t *testing.T) *chatServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := database.NewMemoryStore()
	hub := websocket.NewHub(nil, quietLogger())
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	authSvc := services.NewAuthService(store, jwtMgr, services.NewMemoryBlacklist())

	wsH := NewWebSocketHandler(store, hub, NewMessageHandler(store, hub, nil), websocket.SessionConfig{
		RegistrationTimeout:   time.Second,
		DeregistrationTimeout: time.Second,
	}, []string{"https://chat.example.com"})

	r := gin.New()
	r.GET("/ws/chat/:room_id", middleware.WSAuthMiddleware(authSvc), wsH.HandleWebSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, hub.Shutdown(ctx))
	})

	return &chatServer{
		store: store,
		hub:   hub,
		jwt:   jwtMgr,
		url:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (s *chatServer) user(t *testing.T, name string) (services.Identity, string) {
	t.Helper()
	id := saveUser(t, s.store, name)
	token, _, err := s.jwt.Generate(id.UserID.String(), name)
	require.NoError(t, err)
	return id, token
}

func (s *chatServer) dial(t *testing.T, roomID uint, token string) *gorilla.Conn {
	t.Helper()
	url := fmt.Sprintf("%s/ws/chat/%d", s.url, roomID)
	if token != "" {
		url += "?token=" + token
	}
	conn, resp, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *gorilla.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var evt map[string]any
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func expectClose(t *testing.T, conn *gorilla.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	var closeErr *gorilla.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, code, closeErr.Code)
}

func waitSubscribers(t *testing.T, hub *websocket.Hub, roomID uint, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(roomID) == n }, 2*time.Second, 5*time.Millisecond)
}

func TestChat_MembersSeeEachOther(t *testing.T) {
	s := newChatServer(t)
	alice, aliceToken := s.user(t, "alice")
	bob, bobToken := s.user(t, "bob")
	_, carolToken := s.user(t, "carol")

	room := &models.Room{Name: "R", IsGroup: true, AdminID: &alice.UserID}
	require.NoError(t, s.store.CreateRoom(context.Background(), room, []uuid.UUID{bob.UserID}))

	a := s.dial(t, room.ID, aliceToken)
	b := s.dial(t, room.ID, bobToken)
	waitSubscribers(t, s.hub, room.ID, 2)

	require.NoError(t, b.WriteJSON(map[string]any{"type": "new_message", "text": "hi"}))
	var msgID float64
	for _, conn := range []*gorilla.Conn{a, b} {
		evt := readEvent(t, conn)
		assert.Equal(t, "chat_message", evt["type"])
		assert.Equal(t, "hi", evt["text"])
		assert.Equal(t, "bob", evt["sender"])
		msgID = evt["message_id"].(float64)
	}

	require.NoError(t, a.WriteJSON(map[string]any{"type": "edit_message", "message_id": msgID, "new_text": "hello"}))
	for _, conn := range []*gorilla.Conn{a, b} {
		evt := readEvent(t, conn)
		assert.Equal(t, "message_edited", evt["type"])
		assert.Equal(t, "hello", evt["new_text"])
		assert.Equal(t, "alice", evt["edited_by"])
	}

	history, err := s.store.ListEditHistory(context.Background(), uint(msgID))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0].OldText)

	c := s.dial(t, room.ID, carolToken)
	expectClose(t, c, websocket.CloseNotMember)
	assert.Equal(t, 2, s.hub.Subscribers(room.ID))
}

func TestChat_ErrorsKeepSessionOpen(t *testing.T) {
	s := newChatServer(t)
	alice, aliceToken := s.user(t, "alice")
	bob, bobToken := s.user(t, "bob")

	room := &models.Room{Name: "R", IsGroup: true, AdminID: &alice.UserID}
	require.NoError(t, s.store.CreateRoom(context.Background(), room, []uuid.UUID{bob.UserID}))

	a := s.dial(t, room.ID, aliceToken)
	b := s.dial(t, room.ID, bobToken)
	waitSubscribers(t, s.hub, room.ID, 2)

	require.NoError(t, a.WriteJSON(map[string]any{"type": "new_message", "text": "admin post"}))
	msgID := readEvent(t, a)["message_id"]
	readEvent(t, b)

	require.NoError(t, b.WriteJSON(map[string]any{"type": "delete_message", "message_id": msgID}))
	evt := readEvent(t, b)
	assert.Equal(t, "error", evt["type"])
	assert.Contains(t, evt["message"], "forbidden")

	require.NoError(t, b.WriteMessage(gorilla.TextMessage, []byte(`{"type":"shout"}`)))
	evt = readEvent(t, b)
	assert.Equal(t, "error", evt["type"])
	assert.Contains(t, evt["message"], "malformed frame")

	require.NoError(t, b.WriteJSON(map[string]any{"type": "new_message", "text": ""}))
	evt = readEvent(t, b)
	assert.Equal(t, "error", evt["type"])
	assert.Equal(t, services.ErrEmptyMessage.Error(), evt["message"])

	require.NoError(t, b.WriteJSON(map[string]any{"type": "new_message", "text": "still here"}))
	for _, conn := range []*gorilla.Conn{b, a} {
		evt := readEvent(t, conn)
		assert.Equal(t, "chat_message", evt["type"])
		assert.Equal(t, "still here", evt["text"])
	}
}

func TestChat_RejectsUnauthenticated(t *testing.T) {
	s := newChatServer(t)
	alice, _ := s.user(t, "alice")
	room := &models.Room{Name: "R"}
	require.NoError(t, s.store.CreateRoom(context.Background(), room, []uuid.UUID{alice.UserID}))

	expectClose(t, s.dial(t, room.ID, ""), websocket.CloseUnauthenticated)
	expectClose(t, s.dial(t, room.ID, "not-a-jwt"), websocket.CloseUnauthenticated)

	other := auth.NewJWTManager("other-secret", time.Hour)
	forged, _, err := other.Generate(alice.UserID.String(), "alice")
	require.NoError(t, err)
	expectClose(t, s.dial(t, room.ID, forged), websocket.CloseUnauthenticated)

	assert.Equal(t, 0, s.hub.Subscribers(room.ID))
}

func TestChat_MissingRoomIsNotMember(t *testing.T) {
	s := newChatServer(t)
	_, token := s.user(t, "alice")

	expectClose(t, s.dial(t, 404, token), websocket.CloseNotMember)
}

func TestChat_ReplaysRecentHistory(t *testing.T) {
	s := newChatServer(t)
	alice, token := s.user(t, "alice")
	room := &models.Room{Name: "R"}
	require.NoError(t, s.store.CreateRoom(context.Background(), room, []uuid.UUID{alice.UserID}))

	ctx := context.Background()
	var ids []uint
	for i := 0; i < 60; i++ {
		text := fmt.Sprintf("m%d", i)
		msg, err := s.store.CreateMessage(ctx, room.ID, alice.UserID, &text, nil)
		require.NoError(t, err)
		ids = append(ids, msg.ID)
	}
	deleted := ids[55]
	require.NoError(t, s.store.SoftDeleteMessage(ctx, deleted, alice.UserID))

	conn := s.dial(t, room.ID, token)

	var got []uint
	for i := 0; i < HistoryLimit; i++ {
		evt := readEvent(t, conn)
		require.Equal(t, "chat_message", evt["type"])
		got = append(got, uint(evt["message_id"].(float64)))
	}

	assert.NotContains(t, got, deleted)
	assert.Equal(t, ids[len(ids)-1], got[len(got)-1])
	assert.Equal(t, ids[9], got[0])
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1], got[i])
	}

	waitSubscribers(t, s.hub, room.ID, 1)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "new_message", "text": "live"}))
	evt := readEvent(t, conn)
	assert.Equal(t, "live", evt["text"])
}

func TestChat_DisconnectDeregisters(t *testing.T) {
	s := newChatServer(t)
	alice, token := s.user(t, "alice")
	room := &models.Room{Name: "R"}
	require.NoError(t, s.store.CreateRoom(context.Background(), room, []uuid.UUID{alice.UserID}))

	conn := s.dial(t, room.ID, token)
	waitSubscribers(t, s.hub, room.ID, 1)

	require.NoError(t, conn.WriteMessage(gorilla.CloseMessage, gorilla.FormatCloseMessage(gorilla.CloseNormalClosure, "")))
	conn.Close()
	waitSubscribers(t, s.hub, room.ID, 0)
}

func TestChat_RejectsForeignOrigin(t *testing.T) {
	s := newChatServer(t)
	_, token := s.user(t, "alice")

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := gorilla.DefaultDialer.Dial(fmt.Sprintf("%s/ws/chat/1?token=%s", s.url, token), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://chat.example.com")
	conn, _, err := gorilla.DefaultDialer.Dial(fmt.Sprintf("%s/ws/chat/1?token=%s", s.url, token), header)
	require.NoError(t, err)
	conn.Close()
}
