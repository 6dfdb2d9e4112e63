package websocket

import (
	"errors"

	"github.com/gorilla/websocket"
	"github.com/thereayou/roomchat/internal/services"
)

// Close codes sent when admission fails. They live in the private 4000-4999
// range so clients can tell them apart from transport-level closes.
const (
	CloseUnauthenticated     = 4401
	CloseNotMember           = 4403
	CloseRegistrationTimeout = 4408
	CloseInternalError       = 4500
)

var (
	ErrClientClosed    = errors.New("client is closed")
	ErrClientQueueFull = errors.New("client send queue is full")
	ErrHubClosed       = errors.New("hub is shutting down")
)

// CloseCodeFor picks the close code for an admission failure.
func CloseCodeFor(err error) int {
	switch {
	case err == nil:
		return websocket.CloseNormalClosure
	case errors.Is(err, services.ErrUnauthenticated):
		return CloseUnauthenticated
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrNotFound):
		return CloseNotMember
	case errors.Is(err, services.ErrRegistrationTimeout):
		return CloseRegistrationTimeout
	case errors.Is(err, ErrHubClosed):
		return websocket.CloseGoingAway
	default:
		return CloseInternalError
	}
}

func closeReason(code int) string {
	switch code {
	case CloseUnauthenticated:
		return "unauthenticated"
	case CloseNotMember:
		return "not a member of this room"
	case CloseRegistrationTimeout:
		return "room registration timed out"
	case CloseInternalError:
		return "internal error"
	case websocket.CloseGoingAway:
		return "server shutting down"
	default:
		return ""
	}
}

// ErrorMessage is the text put in an error event. Storage and unexpected
// failures are not described to the client beyond their category.
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrStorageUnavailable):
		return services.ErrStorageUnavailable.Error()
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrMalformedFrame):
		return err.Error()
	default:
		return "internal error"
	}
}
