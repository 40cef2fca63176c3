package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/store"
)

// actionLine is one JSONL input line: the action plus the record it belongs to.
type actionLine struct {
	Podcast string `json:"podcast"`
	Episode string `json:"episode"`
	User    string `json:"user"`
	playback.Action
}

type selection struct {
	input   string
	podcast string
	episode string
	user    string
}

func (s selection) query() store.Query {
	return store.Query{PodcastID: s.podcast, EpisodeID: s.episode, UserID: s.user}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// loadActions reads r into a fresh memory store, keeping only lines for the
// selected episode. It returns the store and the number of lines kept.
func loadActions(ctx context.Context, r io.Reader, sel selection) (*store.MemoryActionStore, int, error) {
	st := store.NewMemoryActionStore()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)

	kept, lineNo := 0, 0
	for sc.Scan() {
		lineNo++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var l actionLine
		if err := sonic.UnmarshalString(raw, &l); err != nil {
			return nil, 0, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if l.Kind == "" {
			l.Kind = playback.ActionPlay
		}
		if !l.Kind.Valid() {
			return nil, 0, fmt.Errorf("line %d: unknown action kind %q", lineNo, l.Kind)
		}
		if l.Podcast != sel.podcast || l.Episode != sel.episode {
			continue
		}
		if sel.user != "" && l.User != sel.user {
			continue
		}
		key := store.RecordKey{PodcastID: l.Podcast, EpisodeID: l.Episode, UserID: l.User}
		if _, err := st.Append(ctx, key, []playback.Action{l.Action}); err != nil {
			return nil, 0, err
		}
		kept++
	}
	if err := sc.Err(); err != nil {
		return nil, 0, err
	}
	return st, kept, nil
}
