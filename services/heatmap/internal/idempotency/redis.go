package idempotency

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "heatmap:event:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisStore) Check(ctx context.Context, eventID string) (bool, error) {
	set, err := s.client.SetNX(ctx, keyPrefix+eventID, 1, s.ttl).Result()
	if err != nil {
		return false, err
	}
	// SetNX reports true when the key was created, i.e. the event is new.
	return !set, nil
}

func (s *redisStore) Forget(ctx context.Context, eventID string) error {
	return s.client.Del(ctx, keyPrefix+eventID).Err()
}
