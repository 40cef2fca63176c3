package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
	"github.com/example/playback-heatmap/services/heatmap/internal/service"
)

type computeOptions struct {
	selection
	budget   int
	fanIn    int
	workers  int
	duration float64
	output   string
	watch    bool
}

func (o *computeOptions) bind(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "-", "JSONL file of actions (- for stdin)")
	f.StringVar(&o.podcast, "podcast", "", "Podcast id (required)")
	f.StringVar(&o.episode, "episode", "", "Episode id (required)")
	f.StringVar(&o.user, "user", "", "Restrict to one listener")
	f.IntVar(&o.budget, "budget", playback.DefaultBudget, "Maximum number of buckets")
	f.IntVar(&o.fanIn, "fan-in", playback.DefaultFanIn, "Operands per combine call")
	f.IntVar(&o.workers, "workers", 0, "Concurrent combine calls (0 = GOMAXPROCS)")
	_ = cmd.MarkFlagRequired("podcast")
	_ = cmd.MarkFlagRequired("episode")
}

func (o *computeOptions) validate() error {
	if o.fanIn < 2 {
		return errors.New("--fan-in must be at least 2")
	}
	if o.duration < 0 {
		return errors.New("--duration must not be negative")
	}
	return nil
}

// compute runs the service read path over the selected input.
func (o *computeOptions) compute(ctx context.Context, log *zap.Logger) (playback.Histogram, error) {
	in, err := openInput(o.input)
	if err != nil {
		return playback.Histogram{}, err
	}
	defer in.Close()

	st, kept, err := loadActions(ctx, in, o.selection)
	if err != nil {
		return playback.Histogram{}, err
	}
	log.Debug("actions loaded", zap.String("input", o.input), zap.Int("actions", kept))

	svc := &service.Heatmaps{
		Store:  st,
		Reduce: playback.ReduceOptions{Budget: o.budget, FanIn: o.fanIn, Workers: o.workers},
		Log:    log,
	}
	return svc.Get(ctx, o.query(), o.duration)
}

func newComputeCmd(g *globalOptions) *cobra.Command {
	o := &computeOptions{}
	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Print the heatmap of one episode",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			if o.watch {
				return o.runWatch(cmd, g.logger())
			}
			return o.runOnce(cmd, g.logger())
		},
	}
	o.bind(cmd)
	cmd.Flags().Float64Var(&o.duration, "duration", 0, "Episode duration in seconds; pads an unplayed tail bucket")
	cmd.Flags().StringVarP(&o.output, "output", "o", "table", "Output format (table, json)")
	cmd.Flags().BoolVarP(&o.watch, "watch", "w", false, "Recompute whenever the input file changes")
	return cmd
}

func (o *computeOptions) runOnce(cmd *cobra.Command, log *zap.Logger) error {
	h, err := o.compute(cmd.Context(), log)
	if err != nil {
		return err
	}
	return o.render(cmd.OutOrStdout(), h)
}

func (o *computeOptions) render(w io.Writer, h playback.Histogram) error {
	switch o.output {
	case "json":
		body, err := sonic.ConfigStd.MarshalIndent(summaryOf(o.selection, h), "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(body))
		return err
	case "table", "":
		return writeTable(w, h, isTerminal(w))
	default:
		return fmt.Errorf("unknown output format %q", o.output)
	}
}

type summary struct {
	PodcastID string             `json:"podcast_id"`
	EpisodeID string             `json:"episode_id"`
	UserID    string             `json:"user_id,omitempty"`
	Borders   []float64          `json:"borders"`
	Heatmap   []int64            `json:"heatmap"`
	Sections  []playback.Section `json:"sections"`
	MaxPlays  int64              `json:"max_plays"`
	Played    bool               `json:"played"`
}

func summaryOf(sel selection, h playback.Histogram) summary {
	s := summary{
		PodcastID: sel.podcast,
		EpisodeID: sel.episode,
		UserID:    sel.user,
		Borders:   h.Boundaries,
		Heatmap:   h.Counts,
		Sections:  h.Sections(),
		MaxPlays:  h.MaxPlays(),
		Played:    h.Played(),
	}
	if s.Borders == nil {
		s.Borders = []float64{}
	}
	if s.Heatmap == nil {
		s.Heatmap = []int64{}
	}
	return s
}

func (o *computeOptions) runWatch(cmd *cobra.Command, log *zap.Logger) error {
	if o.input == "" || o.input == "-" {
		return errors.New("--watch needs a file --input")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// Editors often replace the file, so watch its directory.
	if err := watcher.Add(filepath.Dir(o.input)); err != nil {
		return err
	}

	if err := o.runOnce(cmd, log); err != nil {
		log.Warn("compute failed", zap.Error(err))
	}

	target := filepath.Clean(o.input)
	var pending <-chan time.Time
	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == target && ev.Has(fsnotify.Write|fsnotify.Create) {
				pending = time.After(200 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := o.runOnce(cmd, log); err != nil {
				log.Warn("compute failed", zap.Error(err))
			}
		}
	}
}
