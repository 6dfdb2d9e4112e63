package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/thereayou/roomchat/internal/handlers/dto"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

// SearchLimit caps the users returned by one search.
const SearchLimit = 20

type UserHandler struct {
	users services.UserStore
}

func NewUserHandler(users services.UserStore) *UserHandler {
	return &UserHandler{users: users}
}

// SearchUsers finds users by username so their ids can be used to create
// rooms and add members. An empty query matches nobody.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusOK, dto.UserSearchResponse{Users: []dto.UserInfo{}})
		return
	}

	users, err := h.users.SearchUsers(c.Request.Context(), query, SearchLimit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UserSearchResponse{
		Users: lo.Map(users, func(u models.User, _ int) dto.UserInfo {
			return dto.UserInfo{ID: u.ID, Username: u.Username}
		}),
	})
}
