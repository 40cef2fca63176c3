package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/analytics"
	"github.com/example/playback-heatmap/internal/platform/api"
	"github.com/example/playback-heatmap/internal/platform/auth"
	"github.com/example/playback-heatmap/internal/platform/httpserver"
	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
	"github.com/example/playback-heatmap/services/heatmap/internal/worker"
)

// Ingester stores actions synchronously.
type Ingester interface {
	Ingest(ctx context.Context, key store.RecordKey, actions []playback.Action) (int, error)
}

type uploadAction struct {
	Podcast   string   `json:"podcast"`
	Episode   string   `json:"episode"`
	Device    string   `json:"device,omitempty"`
	Action    string   `json:"action"`
	Started   *float64 `json:"started,omitempty"`
	Position  *float64 `json:"position,omitempty"`
	Total     *float64 `json:"total,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
}

type uploadRequest struct {
	Actions []uploadAction `json:"actions"`
}

type uploadResponse struct {
	Timestamp int64    `json:"timestamp"`
	Episodes  int      `json:"episodes"`
	Inserted  *int     `json:"inserted,omitempty"`
	EventIDs  []string `json:"event_ids,omitempty"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.Truncate(time.Second), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Truncate(time.Second), nil
		}
	}
	return time.Time{}, errors.New("unrecognised timestamp")
}

type episodeGroup struct {
	key     store.RecordKey
	actions []playback.Action
}

// groupActions validates the upload and groups it per episode, keeping the
// order in which episodes first appear. Actions without podcast or episode
// are skipped. Positions are stored as uploaded, whatever the action kind.
func groupActions(userID string, in []uploadAction, now time.Time) ([]episodeGroup, *api.APIError) {
	var groups []episodeGroup
	index := make(map[store.RecordKey]int)

	for i, u := range in {
		kind := playback.ActionKind(strings.ToLower(strings.TrimSpace(u.Action)))
		if !kind.Valid() {
			return nil, &api.APIError{Code: "INVALID_ACTION", Message: "unknown action kind",
				Details: map[string]any{"index": i, "action": u.Action}}
		}
		ts, err := parseTimestamp(u.Timestamp, now)
		if err != nil {
			return nil, &api.APIError{Code: "INVALID_TIMESTAMP", Message: err.Error(),
				Details: map[string]any{"index": i, "timestamp": u.Timestamp}}
		}

		key := store.RecordKey{
			PodcastID: strings.TrimSpace(u.Podcast),
			EpisodeID: strings.TrimSpace(u.Episode),
			UserID:    userID,
		}
		if key.PodcastID == "" || key.EpisodeID == "" {
			continue
		}

		a := playback.Action{
			Kind:      kind,
			Started:   u.Started,
			Position:  u.Position,
			Total:     u.Total,
			DeviceID:  strings.TrimSpace(u.Device),
			Timestamp: ts,
		}

		gi, ok := index[key]
		if !ok {
			gi = len(groups)
			index[key] = gi
			groups = append(groups, episodeGroup{key: key})
		}
		groups[gi].actions = append(groups[gi].actions, a)
	}
	return groups, nil
}

// UploadActions handles POST /v1/episodes/actions.
func UploadActions(svc Ingester, pub *EventPublisher, an *analytics.Publisher, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok || userID == "" {
			api.Unauthorized(w, "UNAUTHORIZED", "authentication required", rid)
			return
		}

		var req uploadRequest
		if err := api.DecodeJSON(r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "invalid JSON", rid, nil)
			return
		}

		now := time.Now().UTC()
		groups, apiErr := groupActions(userID, req.Actions, now)
		if apiErr != nil {
			api.BadRequest(w, apiErr.Code, apiErr.Message, rid, apiErr.Details)
			return
		}

		resp := uploadResponse{Timestamp: now.Unix(), Episodes: len(groups)}
		if pub.Enabled() {
			for _, g := range groups {
				id, err := pub.PublishActions(worker.ActionsEvent{
					UserID:    g.key.UserID,
					PodcastID: g.key.PodcastID,
					EpisodeID: g.key.EpisodeID,
					Actions:   g.actions,
				})
				if err != nil {
					log.Error("publish actions failed", zap.String("request_id", rid), zap.Error(err))
					api.ServiceUnavailable(w, "PUBLISH_FAILED", "could not queue actions", rid)
					return
				}
				resp.EventIDs = append(resp.EventIDs, id)
			}
			if len(resp.EventIDs) > 0 {
				w.Header().Set("X-Event-ID", resp.EventIDs[0])
			}
			an.Publish(analytics.SubjectActionsUploaded, "actions_uploaded", userID,
				map[string]any{"actions": len(req.Actions), "episodes": len(groups), "async": true})
			api.WriteJSON(w, http.StatusAccepted, resp)
			return
		}

		inserted := 0
		for _, g := range groups {
			n, err := svc.Ingest(r.Context(), g.key, g.actions)
			if err != nil {
				log.Error("ingest actions failed", zap.String("request_id", rid),
					zap.String("episode_id", g.key.EpisodeID), zap.Error(err))
				api.Internal(w, rid)
				return
			}
			inserted += n
		}
		resp.Inserted = &inserted
		an.Publish(analytics.SubjectActionsUploaded, "actions_uploaded", userID,
			map[string]any{"actions": len(req.Actions), "episodes": len(groups), "async": false})
		api.WriteJSON(w, http.StatusOK, resp)
	}
}
