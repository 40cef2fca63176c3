package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

func TestKey_StableAndDistinct(t *testing.T) {
	k := Key{PodcastID: "p", EpisodeID: "e", UserID: "u", Budget: 50}
	assert.Equal(t, k.String(), k.String())
	assert.Contains(t, k.String(), "heatmap:")
	assert.NotEqual(t, k.String(), k.Episode().String())
	assert.NotEqual(t, k.String(), Key{PodcastID: "p", EpisodeID: "e", UserID: "u", Budget: 40}.String())
	// field separators keep concatenations apart
	assert.NotEqual(t, Key{PodcastID: "ab", EpisodeID: "c"}.String(), Key{PodcastID: "a", EpisodeID: "bc"}.String())
}

func TestMemory_InvalidateDropsEpisodeEntry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(0)
	h := playback.Histogram{Boundaries: []float64{0, 10}, Counts: []int64{1}}
	user := Key{PodcastID: "p", EpisodeID: "e", UserID: "u", Budget: 50}

	require.NoError(t, m.Set(ctx, user, h))
	require.NoError(t, m.Set(ctx, user.Episode(), h))

	got, ok, err := m.Get(ctx, user)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, h, got)

	require.NoError(t, m.Invalidate(ctx, user))
	_, ok, _ = m.Get(ctx, user)
	assert.False(t, ok)
	_, ok, _ = m.Get(ctx, user.Episode())
	assert.False(t, ok)
}

func TestMemory_EntriesExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory(time.Minute)
	m.now = func() time.Time { return now }
	key := Key{PodcastID: "p", EpisodeID: "e", Budget: 50}
	h := playback.Histogram{Boundaries: []float64{0, 10}, Counts: []int64{1}}

	require.NoError(t, m.Set(ctx, key, h))
	now = now.Add(59 * time.Second)
	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, err = m.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, m.entries)
}

func TestRedisCache_OpenBreakerSkipsRedis(t *testing.T) {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "heatmap-cache-test",
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 1 },
	})
	c := &RedisCache{
		Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1}),
		TTL:    time.Minute,
		CB:     cb,
	}
	defer c.Close()

	ctx := context.Background()
	_, _, err := c.Get(ctx, Key{PodcastID: "p", EpisodeID: "e"})
	require.Error(t, err)

	_, _, err = c.Get(ctx, Key{PodcastID: "p", EpisodeID: "e"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}
