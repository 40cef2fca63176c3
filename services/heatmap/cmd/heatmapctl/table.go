package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/example/playback-heatmap/services/heatmap/internal/playback"
)

const barWidth = 40

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// writeTable prints one row per bucket. Bars are drawn only for terminals.
func writeTable(w io.Writer, h playback.Histogram, bars bool) error {
	if h.Empty() {
		_, err := fmt.Fprintln(w, "no playback recorded")
		return err
	}

	header := []string{"FROM", "UNTIL", "PLAYS"}
	rows := make([][]string, 0, h.Buckets())
	for _, s := range h.Sections() {
		rows = append(rows, []string{formatSeconds(s.From), formatSeconds(s.Until), strconv.FormatInt(s.Plays, 10)})
	}

	widths := make([]int, len(header))
	for i, c := range header {
		widths[i] = runewidth.StringWidth(c)
	}
	for _, r := range rows {
		for i, c := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(c))
		}
	}

	line := func(cells []string, bar string) string {
		var b strings.Builder
		for i, c := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(runewidth.FillLeft(c, widths[i]))
		}
		if bar != "" {
			b.WriteString("  ")
			b.WriteString(bar)
		}
		return b.String()
	}

	if _, err := fmt.Fprintln(w, line(header, "")); err != nil {
		return err
	}
	peak := h.MaxPlays()
	for i, r := range rows {
		bar := ""
		if bars && peak > 0 {
			bar = strings.Repeat("█", int(h.Counts[i]*barWidth/peak))
		}
		if _, err := fmt.Fprintln(w, line(r, bar)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "buckets=%d max_plays=%d\n", h.Buckets(), peak)
	return err
}
