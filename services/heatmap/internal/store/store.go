package store

import (
	"context"
	"errors"
	"strings"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

// ErrInvalidQuery is returned when a query does not name a single episode.
var ErrInvalidQuery = errors.New("podcast_id and episode_id are required")

// RecordKey identifies the playback record of one user on one episode.
type RecordKey struct {
	PodcastID string
	EpisodeID string
	UserID    string
}

// Query selects the records feeding one heatmap. PodcastID and EpisodeID are
// required; an empty UserID selects every listener of the episode.
type Query struct {
	PodcastID string
	EpisodeID string
	UserID    string
}

// Normalize trims the identifiers and rejects queries spanning several episodes.
func (q Query) Normalize() (Query, error) {
	q.PodcastID = strings.TrimSpace(q.PodcastID)
	q.EpisodeID = strings.TrimSpace(q.EpisodeID)
	q.UserID = strings.TrimSpace(q.UserID)
	if q.PodcastID == "" || q.EpisodeID == "" {
		return Query{}, ErrInvalidQuery
	}
	return q, nil
}

// ActionStore persists playback actions grouped into per-user records.
type ActionStore interface {
	// Append adds actions to the record of key, ignoring exact duplicates.
	// It returns the number of actions actually stored.
	Append(ctx context.Context, key RecordKey, actions []playback.Action) (int, error)
	// Records returns the records matching q, each with its actions in
	// timestamp order.
	Records(ctx context.Context, q Query) ([]playback.Record, error)
}
