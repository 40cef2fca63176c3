package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/example/playback-heatmap/services/heatmap/internal/codec"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

// Key identifies one cached heatmap. An empty UserID is the episode-wide heatmap.
type Key struct {
	PodcastID string
	EpisodeID string
	UserID    string
	Budget    int
}

// String returns the Redis key: a fixed prefix and the xxHash64 of the fields.
func (k Key) String() string {
	d := xxhash.New()
	_, _ = d.WriteString(k.PodcastID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.EpisodeID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(k.UserID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.Itoa(k.Budget))
	return "heatmap:" + strconv.FormatUint(d.Sum64(), 16)
}

// Episode returns the episode-wide key sharing k's episode and budget.
func (k Key) Episode() Key {
	k.UserID = ""
	return k
}

// Cache stores computed heatmaps.
type Cache interface {
	Get(ctx context.Context, key Key) (playback.Histogram, bool, error)
	Set(ctx context.Context, key Key, h playback.Histogram) error
	// Invalidate drops key and the episode-wide entry it contributes to.
	Invalidate(ctx context.Context, key Key) error
}

// RedisCache keeps compressed histograms in Redis. Calls go through a circuit
// breaker so a failing Redis is skipped instead of slowing every request.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	CB     *gobreaker.CircuitBreaker
}

func NewRedisCache(url string, ttl time.Duration, cb *gobreaker.CircuitBreaker) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl, CB: cb}, nil
}

func (c *RedisCache) Get(ctx context.Context, key Key) (playback.Histogram, bool, error) {
	v, err := c.execute(func() (any, error) {
		b, err := c.Client.Get(ctx, key.String()).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return b, err
	})
	if err != nil {
		return playback.Histogram{}, false, err
	}
	b, _ := v.([]byte)
	if b == nil {
		return playback.Histogram{}, false, nil
	}
	h, err := codec.DecodeHistogram(b)
	if err != nil {
		return playback.Histogram{}, false, err
	}
	return h, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key Key, h playback.Histogram) error {
	b, err := codec.Encode(h, true)
	if err != nil {
		return err
	}
	_, err = c.execute(func() (any, error) {
		return nil, c.Client.Set(ctx, key.String(), b, c.TTL).Err()
	})
	return err
}

func (c *RedisCache) Invalidate(ctx context.Context, key Key) error {
	keys := []string{key.Episode().String()}
	if key.UserID != "" {
		keys = append(keys, key.String())
	}
	_, err := c.execute(func() (any, error) {
		return nil, c.Client.Del(ctx, keys...).Err()
	})
	return err
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

func (c *RedisCache) execute(fn func() (any, error)) (any, error) {
	if c.CB == nil {
		return fn()
	}
	return c.CB.Execute(fn)
}
