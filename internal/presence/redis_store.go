package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one hash per user under presence:<id> with the online
// flag and last_seen timestamp. Rebuildable state, so no expiry juggling:
// the next connect/disconnect overwrites whatever a crash left behind.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func key(userID int) string { return "presence:" + strconv.Itoa(userID) }

func (s *RedisStore) SetOnline(ctx context.Context, userID int, at time.Time) error {
	return s.rdb.HSet(ctx, key(userID), "online", 1, "last_seen", at.Format(time.RFC3339Nano)).Err()
}

func (s *RedisStore) SetOffline(ctx context.Context, userID int, at time.Time) error {
	return s.rdb.HSet(ctx, key(userID), "online", 0, "last_seen", at.Format(time.RFC3339Nano)).Err()
}

func (s *RedisStore) Get(ctx context.Context, userID int) (bool, time.Time, error) {
	vals, err := s.rdb.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return false, time.Time{}, err
	}
	online := vals["online"] == "1"
	lastSeen, _ := time.Parse(time.RFC3339Nano, vals["last_seen"])
	return online, lastSeen, nil
}
