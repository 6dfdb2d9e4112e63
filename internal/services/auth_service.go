package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

var validate = validator.New()

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenBlacklist holds revoked tokens until they would have expired anyway.
type TokenBlacklist interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
	IsRevoked(ctx context.Context, token string) (bool, error)
}

type RedisBlacklist struct {
	rdb *redis.Client
}

func NewRedisBlacklist(rdb *redis.Client) *RedisBlacklist {
	return &RedisBlacklist{rdb: rdb}
}

func (b *RedisBlacklist) Revoke(ctx context.Context, token string, ttl time.Duration) error {
	return b.rdb.Set(ctx, "blacklist:"+token, 1, ttl).Err()
}

func (b *RedisBlacklist) IsRevoked(ctx context.Context, token string) (bool, error) {
	n, err := b.rdb.Exists(ctx, "blacklist:"+token).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type AuthService struct {
	users     UserStore
	jwt       *auth.JWTManager
	blacklist TokenBlacklist
	log       *logrus.Entry
}

func NewAuthService(users UserStore, jwt *auth.JWTManager, blacklist TokenBlacklist) *AuthService {
	return &AuthService{
		users:     users,
		jwt:       jwt,
		blacklist: blacklist,
		log:       logrus.WithField("component", "auth_service"),
	}
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithField("user_id", user.ID).Info("User registered")
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}

	user, err := s.users.FindUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwt.Generate(user.ID.String(), user.Username)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	if err := s.users.UpdateLastSeen(ctx, user.ID); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("Failed to update last seen")
	}

	return &AuthResponse{
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Logout revokes the token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	exp, err := s.jwt.Expiry(token)
	if err != nil {
		return ErrUnauthenticated
	}
	ttl := time.Until(exp)
	if ttl <= 0 {
		return nil
	}
	return s.blacklist.Revoke(ctx, token, ttl)
}

// Authenticate resolves a bearer token to an Identity.
func (s *AuthService) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrUnauthenticated
	}

	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("check blacklist: %w", err)
	}
	if revoked {
		return Identity{}, fmt.Errorf("token revoked: %w", ErrUnauthenticated)
	}

	claims, err := s.jwt.Verify(token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("invalid subject: %w", ErrUnauthenticated)
	}
	return Identity{UserID: userID, Username: claims.Username}, nil
}

// MemoryBlacklist is used when no redis is configured. Revocations do not
// survive a restart and are not shared between instances.
type MemoryBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{revoked: make(map[string]time.Time), now: time.Now}
}

func (b *MemoryBlacklist) Revoke(_ context.Context, token string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = b.now().Add(ttl)
	return nil
}

func (b *MemoryBlacklist) IsRevoked(_ context.Context, token string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.revoked[token]
	if !ok {
		return false, nil
	}
	if b.now().After(until) {
		delete(b.revoked, token)
		return false, nil
	}
	return true, nil
}
