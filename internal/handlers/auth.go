package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/roomchat/internal/handlers/dto"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/pkg/auth"
)

type AuthHandler struct {
	auth *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), services.RegisterRequest{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterResponse{UserID: user.ID, Username: user.Username})
}

// Login issues a JWT and bumps last_seen.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.auth.Login(c.Request.Context(), services.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		UserID:         resp.UserID,
		Username:       resp.Username,
		Token:          resp.Token,
		TokenExpiresAt: resp.ExpiresAt,
	})
}

// Logout blacklists the bearer token until it expires.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, err := auth.ExtractTokenFromHeader(c.Request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
