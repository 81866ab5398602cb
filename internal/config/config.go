// Package config reads pipeline files: where the dataset lives, how it is
// loaded, and the ordered steps run over it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"labset/internal/dataset"
	"labset/internal/imaging"
	"labset/internal/process"
	"labset/internal/storage"
)

// Pipeline is a whole pipeline file.
type Pipeline struct {
	Source string `yaml:"source"`
	// Snapshot, when set, restores <source>/_json/<snapshot>.json instead
	// of scanning the version directories.
	Snapshot string       `yaml:"snapshot"`
	Load     LoadConfig   `yaml:"load"`
	Export   ExportConfig `yaml:"export"`
	// Workers parallelises similarity matrices.
	Workers int    `yaml:"workers"`
	Steps   []Step `yaml:"steps"`
}

// LoadConfig mirrors dataset.LoadOptions.
type LoadConfig struct {
	Version  *VersionSpec    `yaml:"version"`
	Metadata *MetadataConfig `yaml:"metadata"`
	// SubSet is a regular expression over file names.
	SubSet string       `yaml:"subset"`
	Limit  *int         `yaml:"limit"`
	Batch  *BatchConfig `yaml:"batch"`
}

// MetadataConfig mirrors dataset.MetadataOptions.
type MetadataConfig struct {
	Path         string `yaml:"path"`
	Delimiter    string `yaml:"delimiter"`
	UniqueColumn string `yaml:"unique_column"`
	NameFilter   string `yaml:"name_filter"`
}

// BatchConfig mirrors dataset.BatchDescription. Modifier names one of
// Modifiers.
type BatchConfig struct {
	Source   string `yaml:"source"`
	Column   string `yaml:"column"`
	Modifier string `yaml:"modifier"`
}

// ExportConfig says where exported artifacts go.
type ExportConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// Modifiers are the string functions a pipeline file can name.
var Modifiers = map[string]func(string) string{
	"identity":          func(s string) string { return s },
	"before-underscore": dataset.BeforeUnderscore,
	"lower":             strings.ToLower,
	"upper":             strings.ToUpper,
}

// VersionSpec is the version option: a name, a list of names, or
// {match: <regexp>}.
type VersionSpec struct {
	Names []string
	Match string
}

func (v *VersionSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		v.Names = []string{s}
	case yaml.SequenceNode:
		if err := node.Decode(&v.Names); err != nil {
			return err
		}
	case yaml.MappingNode:
		var m map[string]string
		if err := node.Decode(&m); err != nil {
			return err
		}
		for k := range m {
			if k != "match" {
				return dataset.Configurationf("line %d: unknown version key %q", node.Line, k)
			}
		}
		if m["match"] == "" {
			return dataset.Configurationf("line %d: version match must not be empty", node.Line)
		}
		v.Match = m["match"]
	default:
		return dataset.Configurationf("line %d: version must be a name, a list or {match: regexp}", node.Line)
	}
	return nil
}

// Selector converts the spec to a dataset selector.
func (v *VersionSpec) Selector() (dataset.VersionSelector, error) {
	if v == nil {
		return dataset.Version(dataset.DefaultVersion), nil
	}
	if v.Match != "" {
		re, err := regexp.Compile(v.Match)
		if err != nil {
			return nil, dataset.Configurationf("version match: %v", err)
		}
		return dataset.VersionsMatching(re), nil
	}
	return dataset.Versions(v.Names...), nil
}

// Options converts the load section to dataset options.
func (l LoadConfig) Options() (dataset.LoadOptions, error) {
	opts := dataset.DefaultLoadOptions()

	sel, err := l.Version.Selector()
	if err != nil {
		return opts, err
	}
	opts.Version = sel

	if l.Metadata != nil {
		m := &dataset.MetadataOptions{
			Path:         l.Metadata.Path,
			UniqueColumn: l.Metadata.UniqueColumn,
		}
		switch r := []rune(l.Metadata.Delimiter); len(r) {
		case 0:
		case 1:
			m.Delimiter = r[0]
		default:
			return opts, dataset.Configurationf("metadata delimiter must be a single character, got %q", l.Metadata.Delimiter)
		}
		if l.Metadata.NameFilter != "" {
			fn, ok := Modifiers[l.Metadata.NameFilter]
			if !ok {
				return opts, dataset.Configurationf("unknown metadata name filter %q", l.Metadata.NameFilter)
			}
			m.NameFilter = fn
		}
		opts.Metadata = m
	}

	if l.SubSet != "" {
		re, err := regexp.Compile(l.SubSet)
		if err != nil {
			return opts, dataset.Configurationf("subset: %v", err)
		}
		opts.SubSet = storage.Matcher(re)
	}

	if l.Limit != nil {
		opts.Limit = *l.Limit
	}

	if l.Batch != nil {
		b := dataset.DefaultBatchDescription()
		if l.Batch.Source != "" {
			b.Source = dataset.BatchSource(l.Batch.Source)
		}
		b.Column = l.Batch.Column
		if l.Batch.Modifier != "" {
			fn, ok := Modifiers[l.Batch.Modifier]
			if !ok {
				return opts, dataset.Configurationf("unknown batch modifier %q", l.Batch.Modifier)
			}
			b.Modifier = fn
		}
		opts.Batch = b
	}
	return opts, nil
}

// Step operations.
const (
	OpResize         = "resize"
	OpCrop           = "crop"
	OpImageFilter    = "image-filter"
	OpHistogram      = "histogram"
	OpSplit          = "split"
	OpSplitTest      = "split-test"
	OpSpectrumFilter = "spectrum-filter"
	OpCorrelation    = "correlation"
	OpFill           = "fill"
	OpArray          = "array"
	OpRemove         = "remove"
	OpSimilarity     = "similarity"
	OpTarget         = "target"
	OpCluster        = "cluster"
	OpPCA            = "pca"
	OpPCAPlot        = "pca-plot"
	OpSave           = "save"
	OpExport         = "export"
)

// Step is one pipeline operation. Which fields matter depends on Op.
type Step struct {
	Op string `yaml:"op"`
	// Name is the export or snapshot name. It defaults to Op, or "data"
	// for export steps.
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Destination string `yaml:"destination"`
	Overwrite   bool   `yaml:"overwrite"`

	Size   string       `yaml:"size"`
	Crop   *CropConfig  `yaml:"crop"`
	Filter string       `yaml:"filter"`
	Split  *SplitConfig `yaml:"split"`

	Kernel   []float64 `yaml:"kernel"`
	From     *float64  `yaml:"from"`
	To       *float64  `yaml:"to"`
	Value    float64   `yaml:"value"`
	NbPoints int       `yaml:"nb_points"`

	Samples []string `yaml:"samples"`

	Comparator string `yaml:"comparator"`
	Normalize  string `yaml:"normalize"`
	Linkage    string `yaml:"linkage"`
	Image      string `yaml:"image"`
	NPC        int    `yaml:"npc"`
	// Field is the metadata field holding the class of target steps.
	Field string `yaml:"field"`
}

// CropConfig mirrors process.CropOptions.
type CropConfig struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SplitConfig mirrors process.SplitOptions.
type SplitConfig struct {
	DarkBackground *bool   `yaml:"dark_background"`
	MaskColor      string  `yaml:"mask_color"`
	Method         string  `yaml:"method"`
	Scale          float64 `yaml:"scale"`
	SortBy         string  `yaml:"sort_by"`
	MinWidth       int     `yaml:"min_width"`
	MaxWidth       int     `yaml:"max_width"`
	MinHeight      int     `yaml:"min_height"`
	MaxHeight      int     `yaml:"max_height"`
	MinLength      int     `yaml:"min_length"`
	MaxLength      int     `yaml:"max_length"`
	MinSurface     float64 `yaml:"min_surface"`
	MaxSurface     float64 `yaml:"max_surface"`
	SplitIndex     int     `yaml:"split_index"`
	Transparent    bool    `yaml:"transparent"`
}

// CropOptions converts the crop section. Nil gives the default crop.
func (s Step) CropOptions() process.CropOptions {
	if s.Crop == nil {
		return process.DefaultCropOptions()
	}
	return process.CropOptions{X: s.Crop.X, Y: s.Crop.Y, Width: s.Crop.Width, Height: s.Crop.Height}
}

// SplitOptions converts the split section.
func (s Step) SplitOptions() process.SplitOptions {
	opts := process.SplitOptions{Options: process.Options{Overwrite: s.Overwrite}}
	if sc := s.Split; sc != nil {
		opts.DarkBackground = sc.DarkBackground
		opts.MaskColor = sc.MaskColor
		opts.Method = sc.Method
		opts.SplitIndex = sc.SplitIndex
		opts.Transparent = sc.Transparent
		opts.Regions = imaging.RegionOptions{
			Scale:      sc.Scale,
			SortBy:     sc.SortBy,
			MinWidth:   sc.MinWidth,
			MaxWidth:   sc.MaxWidth,
			MinHeight:  sc.MinHeight,
			MaxHeight:  sc.MaxHeight,
			MinLength:  sc.MinLength,
			MaxLength:  sc.MaxLength,
			MinSurface: sc.MinSurface,
			MaxSurface: sc.MaxSurface,
		}
	}
	return opts
}

// Load reads, defaults and validates the pipeline file at path. Relative
// source, metadata and export paths are taken relative to the file.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline file: %w", err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}

	base := filepath.Dir(path)
	if p.Source != "" && !filepath.IsAbs(p.Source) {
		p.Source = filepath.Join(base, p.Source)
	}
	if m := p.Load.Metadata; m != nil && m.Path != "" && !filepath.IsAbs(m.Path) {
		m.Path = filepath.Join(base, m.Path)
	}
	if !filepath.IsAbs(p.Export.Dir) {
		p.Export.Dir = filepath.Join(base, p.Export.Dir)
	}
	return p, nil
}

// Parse decodes, defaults and validates a pipeline document.
func Parse(data []byte) (*Pipeline, error) {
	p := &Pipeline{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, dataset.Configurationf("parsing pipeline: %v", err)
	}
	ApplyDefaults(p)
	if err := Validate(p); err != nil {
		return nil, err
	}
	return p, nil
}
