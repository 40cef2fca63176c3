package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/analytics"
	"github.com/example/playback-heatmap/internal/platform/api"
	"github.com/example/playback-heatmap/internal/platform/httpserver"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
)

// HeatmapReader computes heatmaps.
type HeatmapReader interface {
	Get(ctx context.Context, q store.Query, duration float64) (playback.Histogram, error)
}

// HeatmapInvalidator drops cached heatmaps.
type HeatmapInvalidator interface {
	Invalidate(ctx context.Context, q store.Query) error
}

type heatmapResponse struct {
	PodcastID string             `json:"podcast_id"`
	EpisodeID string             `json:"episode_id"`
	UserID    string             `json:"user_id,omitempty"`
	Borders   []float64          `json:"borders"`
	Heatmap   []int64            `json:"heatmap"`
	Sections  []playback.Section `json:"sections"`
	MaxPlays  int64              `json:"max_plays"`
	Played    bool               `json:"played"`
}

func newHeatmapResponse(q store.Query, h playback.Histogram) heatmapResponse {
	resp := heatmapResponse{
		PodcastID: q.PodcastID,
		EpisodeID: q.EpisodeID,
		UserID:    q.UserID,
		Borders:   h.Boundaries,
		Heatmap:   h.Counts,
		Sections:  h.Sections(),
		MaxPlays:  h.MaxPlays(),
		Played:    h.Played(),
	}
	if resp.Borders == nil {
		resp.Borders = []float64{}
	}
	if resp.Heatmap == nil {
		resp.Heatmap = []int64{}
	}
	return resp
}

func queryFromRequest(r *http.Request) store.Query {
	return store.Query{
		PodcastID: strings.TrimSpace(chi.URLParam(r, "podcast_id")),
		EpisodeID: strings.TrimSpace(chi.URLParam(r, "episode_id")),
		UserID:    strings.TrimSpace(r.URL.Query().Get("user_id")),
	}
}

// GetHeatmap handles GET /v1/podcasts/{podcast_id}/episodes/{episode_id}/heatmap
func GetHeatmap(svc HeatmapReader, an *analytics.Publisher, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := queryFromRequest(r)
		if q.PodcastID == "" || q.EpisodeID == "" {
			api.BadRequest(w, "MISSING_ID", "podcast_id and episode_id are required", rid, nil)
			return
		}

		var duration float64
		if d := strings.TrimSpace(r.URL.Query().Get("duration")); d != "" {
			parsed, err := strconv.ParseFloat(d, 64)
			if err != nil || parsed < 0 || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
				api.BadRequest(w, "INVALID_DURATION", "duration must be a non-negative number of seconds", rid, nil)
				return
			}
			duration = parsed
		}

		h, err := svc.Get(r.Context(), q, duration)
		if err != nil {
			if errors.Is(err, store.ErrInvalidQuery) {
				api.BadRequest(w, "INVALID_QUERY", err.Error(), rid, nil)
				return
			}
			log.Error("get heatmap failed", zap.String("request_id", rid),
				zap.String("episode_id", q.EpisodeID), zap.Error(err))
			api.Internal(w, rid)
			return
		}

		an.Publish(analytics.SubjectHeatmapViewed, "heatmap_viewed", q.UserID, map[string]any{
			"podcast_id": q.PodcastID,
			"episode_id": q.EpisodeID,
			"buckets":    h.Buckets(),
		})
		api.WriteJSON(w, http.StatusOK, newHeatmapResponse(q, h))
	}
}

// InvalidateHeatmap handles DELETE /v1/admin/podcasts/{podcast_id}/episodes/{episode_id}/heatmap
func InvalidateHeatmap(svc HeatmapInvalidator, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := queryFromRequest(r)
		if err := svc.Invalidate(r.Context(), q); err != nil {
			if errors.Is(err, store.ErrInvalidQuery) {
				api.BadRequest(w, "MISSING_ID", err.Error(), rid, nil)
				return
			}
			log.Warn("invalidate heatmap failed", zap.String("request_id", rid), zap.Error(err))
			api.ServiceUnavailable(w, "CACHE_UNAVAILABLE", "cache unavailable", rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
