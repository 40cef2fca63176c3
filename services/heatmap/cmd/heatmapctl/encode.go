package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/playback-heatmap/services/heatmap/internal/codec"
)

func newEncodeCmd(g *globalOptions) *cobra.Command {
	o := &computeOptions{}
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print the encoded size of an episode heatmap for each compression",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.validate(); err != nil {
				return err
			}
			h, err := o.compute(cmd.Context(), g.logger())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "buckets=%d", h.Buckets()); err != nil {
				return err
			}
			for _, c := range []codec.Compression{codec.None, codec.Zstd, codec.LZ4, codec.S2} {
				data, err := codec.EncodeWith(h, c)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(out, " %s=%dB", c, len(data)); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
	o.bind(cmd)
	return cmd
}
