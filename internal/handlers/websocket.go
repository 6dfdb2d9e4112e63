package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/middleware"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/internal/websocket"
)

// HistoryLimit caps the messages replayed to a session when it joins.
const HistoryLimit = 50

// WebSocketHandler upgrades room connections and admits them into the hub.
type WebSocketHandler struct {
	store    services.MessageStore
	hub      *websocket.Hub
	messages *MessageHandler
	session  websocket.SessionConfig
	upgrader gorilla.Upgrader
	log      *logrus.Entry
}

func NewWebSocketHandler(store services.MessageStore, hub *websocket.Hub, messages *MessageHandler, session websocket.SessionConfig, allowedOrigins []string) *WebSocketHandler {
	return &WebSocketHandler{
		store:    store,
		hub:      hub,
		messages: messages,
		session:  session,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: logrus.WithField("component", "websocket_handler"),
	}
}

// originChecker allows requests without an Origin header, and browser
// requests whose origin host is listed. An empty list or "*" allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	hosts := lo.Map(allowed, func(o string, _ int) string {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			return strings.ToLower(u.Host)
		}
		return strings.ToLower(o)
	})
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return lo.Contains(hosts, strings.ToLower(u.Host))
	}
}

// HandleWebSocket serves GET /ws/chat/:room_id.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("room_id"), 10, 32)
	if err != nil || roomID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	identity, _ := middleware.IdentityFrom(c)
	gate := &admission{handler: h, authErr: middleware.AuthError(c)}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Debug("upgrade failed")
		return
	}

	client := websocket.NewClient(h.hub, conn, uint(roomID), identity, h.session)
	_ = client.Serve(c.Request.Context(), gate, h.messages)
}

// admission is the gate of one connection.
type admission struct {
	handler *WebSocketHandler
	authErr error
}

func (a *admission) Admit(ctx context.Context, client *websocket.Client) error {
	if a.authErr != nil {
		return a.authErr
	}
	if !client.Authenticated() {
		return services.ErrUnauthenticated
	}

	ok, err := a.handler.store.IsMember(ctx, client.RoomID, client.Identity.UserID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return services.ErrForbidden
		}
		return err
	}
	if !ok {
		return services.ErrForbidden
	}
	return nil
}

// Replay sends the most recent live messages, oldest first. A failure is
// reported to the session and leaves it active.
func (a *admission) Replay(ctx context.Context, client *websocket.Client) {
	msgs, err := a.handler.store.ListRecentMessages(ctx, client.RoomID, HistoryLimit, true)
	if err != nil {
		a.handler.log.WithError(err).WithField("room_id", client.RoomID).Warn("history replay failed")
		client.SendError(err)
		return
	}

	events := lo.Map(msgs, func(m models.Message, _ int) websocket.ChatMessageEvent {
		return websocket.NewChatMessageEvent(&m, "")
	})
	for _, e := range events {
		if err := client.Send(e); err != nil {
			return
		}
	}
}
