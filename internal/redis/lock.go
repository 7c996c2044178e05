package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const reconcilerLockKey = "lock:reconciler:run"

// LockStore handles distributed locking in Redis.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

// Acquire attempts to take the reconciler run lock. Returns true if the
// lock was acquired, false if another instance holds it. The TTL covers a
// crashed holder; Release is still the normal path.
func (s *LockStore) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, reconcilerLockKey, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release frees the reconciler run lock.
func (s *LockStore) Release(ctx context.Context) error {
	return s.client.Del(ctx, reconcilerLockKey).Err()
}
