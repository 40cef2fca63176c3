// Package service computes episode heatmaps from stored playback records.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/metrics"
	"github.com/example/playback-heatmap/services/heatmap/internal/cache"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
)

// Heatmaps reads records from the store, reduces them to a histogram and
// caches the result until new actions arrive for the episode.
type Heatmaps struct {
	Store   store.ActionStore
	Cache   cache.Cache
	Reduce  playback.ReduceOptions
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func (s *Heatmaps) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Heatmaps) budget() int {
	if s.Reduce.Budget <= 0 {
		return playback.DefaultBudget
	}
	return s.Reduce.Budget
}

func (s *Heatmaps) cacheKey(q store.Query) cache.Key {
	return cache.Key{PodcastID: q.PodcastID, EpisodeID: q.EpisodeID, UserID: q.UserID, Budget: s.budget()}
}

// Get returns the heatmap selected by q. A duration beyond the last played
// position extends the result with an unplayed bucket.
func (s *Heatmaps) Get(ctx context.Context, q store.Query, duration float64) (playback.Histogram, error) {
	q, err := q.Normalize()
	if err != nil {
		return playback.Histogram{}, err
	}
	key := s.cacheKey(q)

	if s.Cache != nil {
		h, ok, err := s.Cache.Get(ctx, key)
		switch {
		case err != nil:
			s.Metrics.CacheError()
			s.log().Warn("heatmap cache get failed", zap.String("podcast_id", q.PodcastID),
				zap.String("episode_id", q.EpisodeID), zap.Error(err))
		case ok:
			s.Metrics.CacheHit()
			return h.PadTo(duration), nil
		default:
			s.Metrics.CacheMiss()
		}
	}

	h, err := s.compute(ctx, q)
	if err != nil {
		return playback.Histogram{}, err
	}

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, key, h); err != nil {
			s.Metrics.CacheError()
			s.log().Warn("heatmap cache set failed", zap.Error(err))
		}
	}
	return h.PadTo(duration), nil
}

func (s *Heatmaps) compute(ctx context.Context, q store.Query) (playback.Histogram, error) {
	start := time.Now()
	records, err := s.Store.Records(ctx, q)
	if err != nil {
		return playback.Histogram{}, err
	}
	leaves, err := playback.CoalesceAll(ctx, records, s.Reduce.Workers)
	if err != nil {
		return playback.Histogram{}, err
	}
	h, err := playback.Reduce(ctx, leaves, s.Reduce)
	if err != nil {
		return playback.Histogram{}, err
	}

	took := time.Since(start)
	s.Metrics.ObserveReduce(len(records), h.Buckets(), took)
	s.log().Debug("heatmap computed",
		zap.String("podcast_id", q.PodcastID),
		zap.String("episode_id", q.EpisodeID),
		zap.String("user_id", q.UserID),
		zap.Int("records", len(records)),
		zap.Int("leaves", len(leaves)),
		zap.Int("buckets", h.Buckets()),
		zap.Duration("took", took))
	return h, nil
}

// Ingest stores actions for one record and drops the cached heatmaps it
// contributes to. It returns the number of newly stored actions.
func (s *Heatmaps) Ingest(ctx context.Context, key store.RecordKey, actions []playback.Action) (int, error) {
	inserted, err := s.Store.Append(ctx, key, actions)
	if err != nil {
		return 0, err
	}
	s.Metrics.ObserveIngest(inserted, len(actions))

	if inserted > 0 && s.Cache != nil {
		ck := s.cacheKey(store.Query{PodcastID: key.PodcastID, EpisodeID: key.EpisodeID, UserID: key.UserID})
		if err := s.Cache.Invalidate(ctx, ck); err != nil {
			// Entries still expire after the cache TTL.
			s.Metrics.CacheError()
			s.log().Warn("heatmap cache invalidate failed", zap.Error(err))
		}
	}
	return inserted, nil
}

// Invalidate drops the cached heatmap selected by q, and the episode-wide one.
func (s *Heatmaps) Invalidate(ctx context.Context, q store.Query) error {
	q, err := q.Normalize()
	if err != nil {
		return err
	}
	if s.Cache == nil {
		return nil
	}
	return s.Cache.Invalidate(ctx, s.cacheKey(q))
}
