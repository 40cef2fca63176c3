package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/analytics"
	"github.com/example/playback-heatmap/internal/platform/auth"
	"github.com/example/playback-heatmap/internal/platform/httpserver"
)

// Service is everything the HTTP surface needs from the heatmap service.
type Service interface {
	Ingester
	HeatmapReader
	HeatmapInvalidator
}

type Deps struct {
	Service   Service
	Publisher *EventPublisher
	Analytics *analytics.Publisher
	Verifier  auth.JWTVerifier
	Metrics   http.Handler
	Log       *zap.Logger
	// UploadLimiter, when set, limits action uploads per user.
	UploadLimiter *httpserver.RateLimiter
}

// UserKey charges rate limits to the authenticated user.
func UserKey(r *http.Request) string {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

// Mount registers the heatmap routes on r. Call httpserver.SetupRouter first.
func Mount(r chi.Router, d Deps) {
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/podcasts/{podcast_id}/episodes/{episode_id}/heatmap", GetHeatmap(d.Service, d.Analytics, d.Log))

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser(d.Verifier))
			upload := r
			if d.UploadLimiter != nil {
				upload = r.With(d.UploadLimiter.Middleware)
			}
			upload.Post("/episodes/actions", UploadActions(d.Service, d.Publisher, d.Analytics, d.Log))

			r.With(auth.RequireAdmin).Delete("/admin/podcasts/{podcast_id}/episodes/{episode_id}/heatmap",
				InvalidateHeatmap(d.Service, d.Log))
		})
	})
}
