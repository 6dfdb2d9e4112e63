package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/roomchat/internal/services"
	"github.com/thereayou/roomchat/pkg/auth"
)

const (
	IdentityKey  = "identity"
	authErrorKey = "authError"
)

// Authenticator resolves a bearer token to the identity it was issued for.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (services.Identity, error)
}

// AuthMiddleware rejects HTTP requests without a valid bearer token.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.ExtractTokenFromHeader(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		identity, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, services.ErrUnauthenticated) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "cannot verify token"})
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// WSAuthMiddleware resolves the identity of a websocket handshake but never
// aborts it: the socket is upgraded first and rejected with a close code, so
// clients can tell why they were turned away. The token is read from the
// "token" query parameter or the Authorization header.
func WSAuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authn.Authenticate(c.Request.Context(), auth.ExtractToken(c.Request))
		if err != nil {
			c.Set(authErrorKey, err)
		} else {
			c.Set(IdentityKey, identity)
		}
		c.Next()
	}
}

// IdentityFrom returns the identity set by one of the auth middlewares.
func IdentityFrom(c *gin.Context) (services.Identity, bool) {
	v, ok := c.Get(IdentityKey)
	if !ok {
		return services.Identity{}, false
	}
	identity, ok := v.(services.Identity)
	return identity, ok
}

// AuthError returns why WSAuthMiddleware could not resolve an identity.
func AuthError(c *gin.Context) error {
	v, ok := c.Get(authErrorKey)
	if !ok {
		return nil
	}
	err, _ := v.(error)
	return err
}
