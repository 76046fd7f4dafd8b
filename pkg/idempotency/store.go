package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewStore(rdb redis.Cmdable, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

// Key scopes an event id to a consumer group so two groups reading the same
// topic never suppress each other.
func (s *Store) Key(group, eventID string) string {
	return fmt.Sprintf("idem:%s:%s", group, eventID)
}

// Seen reports whether Mark was called for key. It never claims the key, so a
// message whose handler never finished is still processed on redelivery.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key as handled. Call it only once the handler's effects are
// durable.
func (s *Store) Mark(ctx context.Context, key string) error {
	return s.rdb.Set(ctx, key, "1", s.ttl).Err()
}
