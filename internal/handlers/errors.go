package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/thereayou/roomchat/internal/services"
)

// respondError writes the status matching err. Unexpected errors are attached
// to the gin context so the request logger records them.
func respondError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": verrs.Error()})
	case errors.Is(err, services.ErrInvalidCredentials), errors.Is(err, services.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrStorageUnavailable):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": services.ErrStorageUnavailable.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
