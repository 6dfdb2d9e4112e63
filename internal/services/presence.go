package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const DefaultPresenceTTL = 2 * time.Minute

// RedisPresence records live sessions per room in a redis hash
// (room:<id>:sessions, session id -> user id), shared by every server
// instance pointed at the same redis.
//
// Each session also holds a lease key that expires after ttl unless Join is
// called again. Online drops hash entries whose lease is gone, so a session
// whose Leave never ran stops being reported once its lease runs out.
type RedisPresence struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisPresence(rdb *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &RedisPresence{rdb: rdb, ttl: ttl}
}

func presenceKey(roomID uint) string {
	return fmt.Sprintf("room:%d:sessions", roomID)
}

func leaseKey(sessionID string) string {
	return "session:" + sessionID + ":lease"
}

// Join registers the session or renews its lease.
func (p *RedisPresence) Join(ctx context.Context, roomID uint, sessionID, userID uuid.UUID) error {
	key := presenceKey(roomID)
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, sessionID.String(), userID.String())
		pipe.Expire(ctx, key, p.ttl)
		pipe.Set(ctx, leaseKey(sessionID.String()), roomID, p.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence join room %d: %w", roomID, err)
	}
	return nil
}

func (p *RedisPresence) Leave(ctx context.Context, roomID uint, sessionID uuid.UUID) error {
	_, err := p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, presenceKey(roomID), sessionID.String())
		pipe.Del(ctx, leaseKey(sessionID.String()))
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence leave room %d: %w", roomID, err)
	}
	return nil
}

// Online returns the distinct users holding at least one live session in the
// room. Entries whose lease expired are removed on the way.
func (p *RedisPresence) Online(ctx context.Context, roomID uint) ([]uuid.UUID, error) {
	key := presenceKey(roomID)
	entries, err := p.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("presence online room %d: %w", roomID, err)
	}
	if len(entries) == 0 {
		return []uuid.UUID{}, nil
	}

	sessions := lo.Keys(entries)
	leases := make([]*redis.IntCmd, len(sessions))
	_, err = p.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, sid := range sessions {
			leases[i] = pipe.Exists(ctx, leaseKey(sid))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("presence leases room %d: %w", roomID, err)
	}

	stale := lo.Filter(sessions, func(_ string, i int) bool { return leases[i].Val() == 0 })
	if len(stale) > 0 {
		if err := p.rdb.HDel(ctx, key, stale...).Err(); err != nil {
			return nil, fmt.Errorf("presence sweep room %d: %w", roomID, err)
		}
	}

	live := lo.Without(sessions, stale...)
	ids := lo.FilterMap(live, func(sid string, _ int) (uuid.UUID, bool) {
		id, err := uuid.Parse(entries[sid])
		return id, err == nil
	})
	return lo.Uniq(ids), nil
}
