package database

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

func (d *Database) SaveUser(ctx context.Context, user *models.User) error {
	return translate("save user", d.db.WithContext(ctx).Create(user).Error)
}

func (d *Database) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translate("get user", err)
	}
	return &user, nil
}

func (d *Database) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := d.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate("find user by email", err)
	}
	return &user, nil
}

func (d *Database) UpdateLastSeen(ctx context.Context, id uuid.UUID) error {
	err := d.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Update("last_seen_at", time.Now().UTC()).Error
	return translate("update last seen", err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (d *Database) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	err := d.db.WithContext(ctx).
		Where("username ILIKE ?", "%"+likeEscaper.Replace(query)+"%").
		Order("username").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, translate("search users", err)
	}
	return users, nil
}

var _ services.UserStore = (*Database)(nil)
