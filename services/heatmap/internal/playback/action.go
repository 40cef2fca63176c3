package playback

import (
	"math"
	"time"
)

// ActionKind is the type of a recorded episode action.
type ActionKind string

const (
	ActionDownload ActionKind = "download"
	ActionPlay     ActionKind = "play"
	ActionDelete   ActionKind = "delete"
	ActionNew      ActionKind = "new"
)

// Valid reports whether k is one of the known action kinds.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionDownload, ActionPlay, ActionDelete, ActionNew:
		return true
	}
	return false
}

// Action is one recorded event of a user on an episode. Started and Position
// are positions in seconds on the episode timeline; only actions carrying both
// contribute to a heatmap.
type Action struct {
	Kind      ActionKind `json:"action"`
	Started   *float64   `json:"started,omitempty"`
	Position  *float64   `json:"position,omitempty"`
	Total     *float64   `json:"total,omitempty"`
	DeviceID  string     `json:"device,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Record holds the actions of one user on one episode.
type Record struct {
	PodcastID string   `json:"podcast_id"`
	EpisodeID string   `json:"episode_id"`
	UserID    string   `json:"user_id"`
	Actions   []Action `json:"actions"`
}

// PlayAction is a convenience constructor for a play action covering [started, position).
func PlayAction(started, position float64) Action {
	return Action{Kind: ActionPlay, Started: &started, Position: &position}
}

// timed reports whether a carries a usable (start, end) pair.
func (a Action) timed() bool {
	if a.Started == nil || a.Position == nil {
		return false
	}
	s, e := *a.Started, *a.Position
	if !finite(s) || !finite(e) {
		return false
	}
	return s >= 0 && e >= s
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
