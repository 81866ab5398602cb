package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"labset/internal/export"
	"labset/internal/version"
)

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	verbose   bool
	exportDir string
	format    formatFlag
}

// formatFlag is an export format checked when the flag is parsed. The zero
// value means unset.
type formatFlag export.Format

var _ pflag.Value = (*formatFlag)(nil)

func (f *formatFlag) String() string { return string(*f) }

func (f *formatFlag) Set(s string) error {
	format, err := export.ParseFormat(s)
	if err != nil {
		return err
	}
	*f = formatFlag(format)
	return nil
}

func (f *formatFlag) Type() string { return "format" }

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "labset",
		Short: "Process and analyse versioned scientific datasets",
		Long: `labset loads a dataset stored as one directory per version (original,
resized, filtered, ...) with one file per sample, derives new versions from
images and spectra, and exports similarity matrices, clusterings and PCA plots.

Examples:
  labset inspect ./data                 # list elements, versions and batches
  labset run pipeline.yaml              # run every step of a pipeline file
  labset run pipeline.yaml --format msgpack --export-dir out`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&g.exportDir, "export-dir", "", "Directory receiving exported artifacts (overrides the pipeline file)")
	root.PersistentFlags().Var(&g.format, "format", "Export format: json | msgpack (overrides the pipeline file)")

	root.AddCommand(newRunCmd(g), newInspectCmd(g), newVersionCmd())
	return root
}

// logger writes text records to w; debug records only with --verbose.
func (g *globals) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if g.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
