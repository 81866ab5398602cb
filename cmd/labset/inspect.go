package main

import (
	"regexp"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"labset/internal/dataset"
)

// summary is what inspect prints, as YAML.
type summary struct {
	Source   string         `yaml:"source"`
	Elements int            `yaml:"elements"`
	Versions []versionInfo  `yaml:"versions"`
	Batches  []batchInfo    `yaml:"batches,omitempty"`
	Samples  []sampleInfo   `yaml:"samples,omitempty"`
	Metadata map[string]int `yaml:"metadata_fields,omitempty"`
}

type versionInfo struct {
	Name string           `yaml:"name"`
	Type dataset.DataType `yaml:"type"`
}

type batchInfo struct {
	ID       string `yaml:"id"`
	Color    string `yaml:"color"`
	Elements int    `yaml:"elements"`
}

type sampleInfo struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name,omitempty"`
	Batch string `yaml:"batch,omitempty"`
	Color string `yaml:"color"`
}

func newInspectCmd(g *globals) *cobra.Command {
	var (
		versions []string
		match    string
		limit    int
		samples  bool
	)
	cmd := &cobra.Command{
		Use:   "inspect <source>",
		Short: "Load a source root and describe its elements, versions and batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := dataset.DefaultLoadOptions()
			opts.Limit = limit
			switch {
			case match != "":
				re, err := regexp.Compile(match)
				if err != nil {
					return dataset.Configurationf("--match: %v", err)
				}
				opts.Version = dataset.VersionsMatching(re)
			case len(versions) > 0:
				opts.Version = dataset.Versions(versions...)
			}

			env := dataset.Env{Log: g.logger(cmd.ErrOrStderr())}
			c, err := dataset.Load(env, args[0], opts)
			if err != nil {
				return err
			}

			s := describe(c)
			if !samples {
				s.Samples = nil
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(s); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.Flags().StringSliceVar(&versions, "version", nil, "Versions to load, reference first (default original)")
	cmd.Flags().StringVar(&match, "match", "", "Load every version whose name matches this regular expression")
	cmd.Flags().IntVar(&limit, "limit", dataset.DefaultLimit, "Maximum number of files per version, 0 for all")
	cmd.Flags().BoolVar(&samples, "samples", false, "List every sample")
	return cmd
}

func describe(c *dataset.Collection) summary {
	s := summary{Source: c.Source, Elements: c.Len()}
	for _, v := range c.Versions() {
		s.Versions = append(s.Versions, versionInfo{Name: v, Type: c.DataType(v)})
	}
	for _, b := range c.Batches {
		s.Batches = append(s.Batches, batchInfo{ID: b.ID, Color: b.Color, Elements: len(b.Elements)})
	}
	for _, e := range c.Data {
		s.Samples = append(s.Samples, sampleInfo{ID: e.ID, Name: e.Name, Batch: e.BatchID, Color: e.Color})
		for field := range e.Metadata {
			if s.Metadata == nil {
				s.Metadata = map[string]int{}
			}
			s.Metadata[field]++
		}
	}
	return s
}
