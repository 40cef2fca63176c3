package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

// MemoryActionStore keeps records in process. It backs tests and the offline
// CLI; state is lost on restart.
type MemoryActionStore struct {
	mu      sync.RWMutex
	records map[RecordKey][]playback.Action
	now     func() time.Time
}

func NewMemoryActionStore() *MemoryActionStore {
	return &MemoryActionStore{
		records: make(map[RecordKey][]playback.Action),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryActionStore) Append(_ context.Context, key RecordKey, actions []playback.Action) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.records[key]
	inserted := 0
	for _, a := range actions {
		if a.Timestamp.IsZero() {
			a.Timestamp = s.now()
		}
		if containsAction(existing, a) {
			continue
		}
		existing = append(existing, a)
		inserted++
	}
	s.records[key] = existing
	return inserted, nil
}

func (s *MemoryActionStore) Records(_ context.Context, q Query) ([]playback.Record, error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []playback.Record
	for key, actions := range s.records {
		if key.PodcastID != q.PodcastID || key.EpisodeID != q.EpisodeID {
			continue
		}
		if q.UserID != "" && key.UserID != q.UserID {
			continue
		}
		sorted := append([]playback.Action(nil), actions...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
		out = append(out, playback.Record{
			PodcastID: key.PodcastID,
			EpisodeID: key.EpisodeID,
			UserID:    key.UserID,
			Actions:   sorted,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func containsAction(list []playback.Action, a playback.Action) bool {
	for _, b := range list {
		if sameAction(a, b) {
			return true
		}
	}
	return false
}

// sameAction mirrors the unique key of the playback_actions table.
func sameAction(a, b playback.Action) bool {
	return a.Kind == b.Kind &&
		a.DeviceID == b.DeviceID &&
		a.Timestamp.Equal(b.Timestamp) &&
		equalPos(a.Started, b.Started) &&
		equalPos(a.Position, b.Position)
}

func equalPos(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
