package database

import (
	"errors"

	"github.com/thereayou/roomchat/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the postgres database and migrates the schema.
func Connect(dsn string) (*Database, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if err := db.SetupJoinTable(&models.Room{}, "Members", &models.RoomMember{}); err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.Message{},
		&models.MessageEditHistory{},
	)
	if err != nil {
		return nil, err
	}

	return NewDatabase(db), nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
