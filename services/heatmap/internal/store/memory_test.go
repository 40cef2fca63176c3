package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

func at(sec int, a playback.Action) playback.Action {
	a.Timestamp = time.Date(2026, 1, 2, 3, 4, sec, 0, time.UTC)
	return a
}

func TestMemoryActionStore_AppendIgnoresDuplicates(t *testing.T) {
	s := NewMemoryActionStore()
	ctx := context.Background()
	key := RecordKey{PodcastID: "p1", EpisodeID: "e1", UserID: "u1"}

	n, err := s.Append(ctx, key, []playback.Action{at(1, playback.PlayAction(0, 30)), at(2, playback.PlayAction(25, 60))})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Append(ctx, key, []playback.Action{at(1, playback.PlayAction(0, 30)), at(3, playback.PlayAction(60, 90))})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	recs, err := s.Records(ctx, Query{PodcastID: "p1", EpisodeID: "e1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Len(t, recs[0].Actions, 3)
}

func TestMemoryActionStore_RecordsFiltersByEpisodeAndUser(t *testing.T) {
	s := NewMemoryActionStore()
	ctx := context.Background()

	_, _ = s.Append(ctx, RecordKey{"p1", "e1", "u2"}, []playback.Action{at(1, playback.PlayAction(0, 10))})
	_, _ = s.Append(ctx, RecordKey{"p1", "e1", "u1"}, []playback.Action{at(2, playback.PlayAction(5, 10)), at(1, playback.PlayAction(0, 5))})
	_, _ = s.Append(ctx, RecordKey{"p1", "e2", "u1"}, []playback.Action{at(1, playback.PlayAction(0, 10))})

	recs, err := s.Records(ctx, Query{PodcastID: "p1", EpisodeID: "e1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "u1", recs[0].UserID)
	assert.Equal(t, "u2", recs[1].UserID)
	assert.Equal(t, 0.0, *recs[0].Actions[0].Started, "actions are ordered by timestamp")

	recs, err = s.Records(ctx, Query{PodcastID: " p1 ", EpisodeID: "e1", UserID: "u2"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "u2", recs[0].UserID)
}

func TestMemoryActionStore_RequiresEpisode(t *testing.T) {
	s := NewMemoryActionStore()
	_, err := s.Records(context.Background(), Query{PodcastID: "p1"})
	assert.ErrorIs(t, err, ErrInvalidQuery)
}
