package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"labset/internal/config"
	"labset/internal/export"
	"labset/internal/pipeline"
)

func newRunCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Run the steps of a pipeline file",
		Long: `Load the dataset described by a pipeline file, run its steps in order and
write every exported artifact to the export directory along with a manifest.

Example pipeline:

  source: ./data
  load:
    version: original
  steps:
    - {op: spectrum-filter, version: original, destination: snv, filter: snv}
    - {op: array, version: snv, destination: arr}
    - {op: cluster, version: snv_arr}
    - {op: pca-plot, version: snv_arr}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := g.logger(cmd.ErrOrStderr())

			p, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if g.exportDir != "" {
				p.Export.Dir = g.exportDir
			}
			if g.format != "" {
				p.Export.Format = g.format.String()
			}
			format, err := export.ParseFormat(p.Export.Format)
			if err != nil {
				return err
			}
			sink, err := export.NewDirSink(p.Export.Dir, format, log)
			if err != nil {
				return err
			}

			c, err := pipeline.Run(cmd.Context(), p, pipeline.Components{Sink: sink}, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d elements, versions: %s\n",
				sink.RunID(), c.Len(), strings.Join(c.Versions(), ", "))
			for _, a := range sink.Manifest().Artifacts {
				fmt.Fprintf(out, "  %-12s %s\n", a.Name, filepath.Join(sink.Dir(), a.File))
			}
			return nil
		},
	}
}
