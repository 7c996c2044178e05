package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"paylink/internal/domain"
)

// StatusCacheTTL bounds how often a read-through refresh may hit the
// provider for the same checkout.
const StatusCacheTTL = 15 * time.Second

const statusCachePrefix = "cache:provider-status:"

// StatusCacheStore caches recently fetched provider statuses in Redis.
type StatusCacheStore struct {
	client *redis.Client
}

// NewStatusCacheStore creates a new StatusCacheStore.
func NewStatusCacheStore(client *redis.Client) *StatusCacheStore {
	return &StatusCacheStore{client: client}
}

func statusCacheKey(p domain.Provider, reference string) string {
	return statusCachePrefix + string(p) + ":" + reference
}

// Get retrieves a cached status. Returns "" on cache miss.
func (s *StatusCacheStore) Get(ctx context.Context, p domain.Provider, reference string) (domain.PaymentStatus, error) {
	value, err := s.client.Get(ctx, statusCacheKey(p, reference)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return domain.PaymentStatus(value), nil
}

// Set stores a freshly fetched status.
func (s *StatusCacheStore) Set(ctx context.Context, p domain.Provider, reference string, status domain.PaymentStatus) error {
	return s.client.Set(ctx, statusCacheKey(p, reference), string(status), StatusCacheTTL).Err()
}
