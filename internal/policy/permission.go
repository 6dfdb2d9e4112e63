// Package policy decides who may change an existing message.
package policy

import (
	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
)

// CanMutate reports whether actor may edit or delete message in room: only
// the sender and the room admin can. room may be nil when it has no admin
// information, in which case only the sender qualifies.
func CanMutate(actor uuid.UUID, message *models.Message, room *models.Room) bool {
	if message == nil || actor == uuid.Nil {
		return false
	}
	if actor == message.SenderID {
		return true
	}
	return room != nil && room.IsAdmin(actor)
}
