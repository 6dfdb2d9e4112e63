package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/handlers"
	"github.com/thereayou/roomchat/internal/middleware"
)

type Endpoints struct {
	Auth      *handlers.AuthHandler
	Rooms     *handlers.RoomHandler
	Users     *handlers.UserHandler
	WebSocket *handlers.WebSocketHandler
	Authn     middleware.Authenticator
	MediaDir  string
}

func APIEndpoints(r *gin.Engine, log *logrus.Logger, e Endpoints) {
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if e.MediaDir != "" {
		r.Static("/media", e.MediaDir)
	}

	authG := r.Group("/auth")
	{
		authG.POST("/register", e.Auth.Register)
		authG.POST("/login", e.Auth.Login)
		authG.POST("/logout", e.Auth.Logout)
	}

	api := r.Group("/", middleware.AuthMiddleware(e.Authn))
	{
		api.GET("/rooms", e.Rooms.GetMyRooms)
		api.POST("/rooms", e.Rooms.CreateRoom)
		api.POST("/rooms/:id/members", e.Rooms.AddMember)
		api.GET("/rooms/:id/online", e.Rooms.GetOnline)
		api.GET("/messages/:id/history", e.Rooms.GetEditHistory)
		api.GET("/users/search", e.Users.SearchUsers)
	}

	r.GET("/ws/chat/:room_id", middleware.WSAuthMiddleware(e.Authn), e.WebSocket.HandleWebSocket)
}
