package database

import (
	"errors"
	"fmt"

	"github.com/thereayou/roomchat/internal/services"
	"gorm.io/gorm"
)

// Database implements the services store interfaces on top of gorm.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// translate maps gorm errors onto the services taxonomy.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, services.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, services.ErrAlreadyExists)
	default:
		return fmt.Errorf("%s: %w: %v", op, services.ErrStorageUnavailable, err)
	}
}
