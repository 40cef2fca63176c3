package cache

import (
	"context"
	"sync"
	"time"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

// Memory is an in-process Cache used when no Redis is configured. Entries
// expire after ttl; a ttl <= 0 keeps them until invalidated.
type Memory struct {
	mu      sync.RWMutex
	entries map[Key]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	h         playback.Histogram
	expiresAt time.Time
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{entries: make(map[Key]memoryEntry), ttl: ttl, now: time.Now}
}

func (m *Memory) Get(_ context.Context, key Key) (playback.Histogram, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return playback.Histogram{}, false, nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return playback.Histogram{}, false, nil
	}
	return e.h, true, nil
}

func (m *Memory) Set(_ context.Context, key Key, h playback.Histogram) error {
	e := memoryEntry{h: h}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	delete(m.entries, key.Episode())
	return nil
}
