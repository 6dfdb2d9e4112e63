package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thereayou/roomchat/internal/models"
	"github.com/thereayou/roomchat/internal/services"
)

// MemoryStore keeps everything in process memory. It backs STORE_DRIVER=memory
// for local runs and the package tests of the realtime core.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]models.User
	rooms    map[uint]*models.Room
	messages map[uint]*models.Message
	history  []models.MessageEditHistory
	nextRoom uint
	nextMsg  uint
	nextHist uint
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[uuid.UUID]models.User),
		rooms:    make(map[uint]*models.Room),
		messages: make(map[uint]*models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) SaveUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return fmt.Errorf("save user: %w", services.ErrAlreadyExists)
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", services.ErrNotFound)
	}
	return &user, nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			user := u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("find user by email: %w", services.ErrNotFound)
}

func (s *MemoryStore) SearchUsers(_ context.Context, query string, limit int) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	users := make([]models.User, 0)
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), needle) {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (s *MemoryStore) UpdateLastSeen(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return fmt.Errorf("update last seen: %w", services.ErrNotFound)
	}
	user.MarkSeen(s.now())
	s.users[id] = user
	return nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, room *models.Room, memberIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.AdminID != nil {
		memberIDs = append([]uuid.UUID{*room.AdminID}, memberIDs...)
	}
	members := make([]models.User, 0, len(memberIDs))
	seen := make(map[uuid.UUID]bool, len(memberIDs))
	for _, id := range memberIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		user, ok := s.users[id]
		if !ok {
			return fmt.Errorf("create room: member %s: %w", id, services.ErrNotFound)
		}
		members = append(members, user)
	}

	s.nextRoom++
	room.ID = s.nextRoom
	if room.CreatedAt.IsZero() {
		room.CreatedAt = s.now()
	}
	room.Members = members

	stored := *room
	stored.Members = append([]models.User(nil), members...)
	s.rooms[room.ID] = &stored
	return nil
}

func (s *MemoryStore) AddMember(_ context.Context, roomID uint, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("add member: %w", services.ErrNotFound)
	}
	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("add member: %w", services.ErrNotFound)
	}
	if !room.HasMember(userID) {
		room.Members = append(room.Members, user)
	}
	return nil
}

func (s *MemoryStore) ListUserRooms(_ context.Context, userID uuid.UUID) ([]models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []models.Room
	for _, r := range s.rooms {
		if r.HasMember(userID) {
			rooms = append(rooms, copyRoom(r))
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID > rooms[j].ID })
	return rooms, nil
}

func (s *MemoryStore) GetRoom(_ context.Context, roomID uint) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("get room %d: %w", roomID, services.ErrNotFound)
	}
	r := copyRoom(room)
	return &r, nil
}

func (s *MemoryStore) IsMember(_ context.Context, roomID uint, userID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return false, nil
	}
	return room.HasMember(userID), nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, roomID uint, senderID uuid.UUID, text, mediaURL *string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return nil, fmt.Errorf("create message: room %d: %w", roomID, services.ErrNotFound)
	}

	s.nextMsg++
	now := s.now()
	msg := &models.Message{
		ID:        s.nextMsg,
		RoomID:    roomID,
		SenderID:  senderID,
		Text:      copyString(text),
		MediaURL:  copyString(mediaURL),
		CreatedAt: now,
		UpdatedAt: now,
		Sender:    s.users[senderID],
	}
	s.messages[msg.ID] = msg

	out := *msg
	return &out, nil
}

func (s *MemoryStore) GetMessage(_ context.Context, id, roomID uint, excludeDeleted bool) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok || msg.RoomID != roomID || (excludeDeleted && msg.IsDeleted) {
		return nil, fmt.Errorf("get message %d: %w", id, services.ErrNotFound)
	}
	return s.copyMessage(msg), nil
}

func (s *MemoryStore) GetMessageByID(_ context.Context, id uint) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("get message %d: %w", id, services.ErrNotFound)
	}
	return s.copyMessage(msg), nil
}

func (s *MemoryStore) AppendEditHistory(_ context.Context, messageID uint, oldText string, editorID uuid.UUID) (*models.MessageEditHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[messageID]; !ok {
		return nil, fmt.Errorf("append edit history: %w", services.ErrNotFound)
	}
	s.nextHist++
	rec := models.MessageEditHistory{
		ID:        s.nextHist,
		MessageID: messageID,
		OldText:   oldText,
		EditedBy:  editorID,
		EditedAt:  s.now(),
	}
	s.history = append(s.history, rec)
	return &rec, nil
}

func (s *MemoryStore) UpdateMessageText(_ context.Context, id uint, newText string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.IsDeleted {
		return time.Time{}, fmt.Errorf("update message text: %w", services.ErrNotFound)
	}
	msg.Text = &newText
	msg.UpdatedAt = s.now()
	return msg.UpdatedAt, nil
}

func (s *MemoryStore) SoftDeleteMessage(_ context.Context, id uint, deleterID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok || msg.IsDeleted {
		return fmt.Errorf("soft delete message: %w", services.ErrNotFound)
	}
	msg.IsDeleted = true
	msg.DeletedBy = &deleterID
	msg.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) ListRecentMessages(_ context.Context, roomID uint, limit int, excludeDeleted bool) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []models.Message
	for _, m := range s.messages {
		if m.RoomID != roomID || (excludeDeleted && m.IsDeleted) {
			continue
		}
		msgs = append(msgs, *s.copyMessage(m))
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (s *MemoryStore) ListEditHistory(_ context.Context, messageID uint) ([]models.MessageEditHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.MessageEditHistory
	for i := len(s.history) - 1; i >= 0; i-- {
		rec := s.history[i]
		if rec.MessageID == messageID {
			rec.Editor = s.users[rec.EditedBy]
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *MemoryStore) copyMessage(m *models.Message) *models.Message {
	out := *m
	out.Text = copyString(m.Text)
	out.MediaURL = copyString(m.MediaURL)
	out.Sender = s.users[m.SenderID]
	return &out
}

func copyRoom(r *models.Room) models.Room {
	out := *r
	out.Members = append([]models.User(nil), r.Members...)
	return out
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	s := *v
	return &s
}

var (
	_ services.MessageStore = (*MemoryStore)(nil)
	_ services.RoomStore    = (*MemoryStore)(nil)
	_ services.UserStore    = (*MemoryStore)(nil)
)
