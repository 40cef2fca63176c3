package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/playback-heatmap/internal/platform/logging"
)

type globalOptions struct {
	debug bool
	log   *zap.Logger
}

func newRootCmd() *cobra.Command {
	g := &globalOptions{}
	root := &cobra.Command{
		Use:   "heatmapctl",
		Short: "Compute playback heatmaps from recorded episode actions",
		Long: `heatmapctl reads playback actions from a JSONL file, one action per line, and
reduces them into the bucketed heatmap served by the heatmap service.

Examples:
  heatmapctl compute --input actions.jsonl --podcast p1 --episode e1
  heatmapctl compute --input actions.jsonl --podcast p1 --episode e1 --user alice --duration 3600
  heatmapctl compute --input - --podcast p1 --episode e1 --output json < actions.jsonl
  heatmapctl encode --input actions.jsonl --podcast p1 --episode e1 --budget 20`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := "warn"
			if g.debug {
				level = "debug"
			}
			log, err := logging.NewConsole(level)
			if err != nil {
				return err
			}
			g.log = log
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&g.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newComputeCmd(g), newEncodeCmd(g))
	return root
}

func (g *globalOptions) logger() *zap.Logger {
	if g.log == nil {
		return zap.NewNop()
	}
	return g.log
}
