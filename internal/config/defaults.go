package config

import (
	"fmt"
	"slices"

	"labset/internal/cluster"
	"labset/internal/dataset"
	"labset/internal/export"
	"labset/internal/process"
	"labset/internal/similarity"
)

// Defaults filled in for fields a pipeline file leaves empty.
const (
	DefaultComparator = "euclidean"
	DefaultExportDir  = "export"
	DefaultNPC        = 2
	DefaultDataName   = "data"
)

// ApplyDefaults fills the empty fields of p in place.
func ApplyDefaults(p *Pipeline) {
	if p.Export.Dir == "" {
		p.Export.Dir = DefaultExportDir
	}
	if p.Export.Format == "" {
		p.Export.Format = string(export.JSON)
	}
	if p.Workers == 0 {
		p.Workers = 1
	}
	for i := range p.Steps {
		s := &p.Steps[i]
		switch s.Op {
		case OpSimilarity, OpCluster:
			if s.Comparator == "" {
				s.Comparator = DefaultComparator
			}
		case OpPCA, OpPCAPlot:
			if s.NPC == 0 {
				s.NPC = DefaultNPC
			}
		case OpExport:
			if s.Name == "" {
				s.Name = DefaultDataName
			}
		}
		if s.Name == "" {
			s.Name = s.Op
		}
	}
}

// needs lists the fields each operation requires.
var needs = map[string][]string{
	OpResize:         {"version", "destination", "size"},
	OpCrop:           {"version", "destination"},
	OpImageFilter:    {"version", "destination", "filter"},
	OpHistogram:      {"version", "destination"},
	OpSplit:          {"version", "destination"},
	OpSplitTest:      {"version"},
	OpSpectrumFilter: {"version", "destination", "filter"},
	OpCorrelation:    {"version", "destination", "kernel"},
	OpFill:           {"version", "destination"},
	OpArray:          {"version", "destination"},
	OpRemove:         {"samples"},
	OpSimilarity:     {"version"},
	OpTarget:         nil,
	OpCluster:        {"version"},
	OpPCA:            {"version"},
	OpPCAPlot:        {"version"},
	OpSave:           nil,
	OpExport:         nil,
}

// Ops returns every known operation, sorted.
func Ops() []string {
	ops := make([]string, 0, len(needs))
	for op := range needs {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Validate checks every field of p without touching the file system.
func Validate(p *Pipeline) error {
	if p.Source == "" {
		return dataset.Configurationf("source must not be empty")
	}
	if _, err := export.ParseFormat(p.Export.Format); err != nil {
		return err
	}
	if p.Workers < 0 {
		return dataset.Configurationf("workers must not be negative, got %d", p.Workers)
	}
	if _, err := p.Load.Options(); err != nil {
		return err
	}
	for i, s := range p.Steps {
		if err := validateStep(s); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Op, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	fields, ok := needs[s.Op]
	if !ok {
		return dataset.Configurationf("unknown operation %q (known: %v)", s.Op, Ops())
	}
	for _, f := range fields {
		if missing(s, f) {
			return dataset.Configurationf("missing %s", f)
		}
	}

	var err error
	switch s.Op {
	case OpImageFilter:
		if _, e := process.ParseImageFilter(s.Filter); e != nil {
			err = fmt.Errorf("unknown image filter %q", s.Filter)
		}
	case OpSpectrumFilter:
		if _, e := process.ParseSpectrumFilter(s.Filter); e != nil {
			err = fmt.Errorf("unknown spectrum filter %q", s.Filter)
		}
	case OpFill, OpArray:
		if s.From != nil && s.To != nil && *s.From == *s.To {
			err = fmt.Errorf("from and to must differ")
		}
		if s.NbPoints < 0 {
			err = fmt.Errorf("nb_points must not be negative, got %d", s.NbPoints)
		}
	case OpSimilarity, OpCluster:
		if !slices.Contains(similarity.Names(), s.Comparator) {
			err = fmt.Errorf("unknown comparator %q (known: %v)", s.Comparator, similarity.Names())
			break
		}
		switch similarity.Normalization(s.Normalize) {
		case "", similarity.NormalizeNone, similarity.NormalizeUnit, similarity.NormalizeSum, similarity.NormalizeMax:
		default:
			err = fmt.Errorf("unknown normalization %q", s.Normalize)
		}
		if err == nil && s.Op == OpCluster {
			if similarity.IsSimilarity(s.Comparator) {
				err = fmt.Errorf("comparator %q measures similarity, cluster needs a distance", s.Comparator)
				break
			}
			_, err = cluster.ParseLinkage(s.Linkage)
		}
	case OpPCA, OpPCAPlot:
		if s.NPC < 0 || (s.Op == OpPCAPlot && s.NPC < 2) {
			err = fmt.Errorf("invalid number of components %d", s.NPC)
		}
	}
	if err != nil {
		return dataset.Configurationf("%v", err)
	}
	return nil
}

func missing(s Step, field string) bool {
	switch field {
	case "version":
		return s.Version == ""
	case "destination":
		return s.Destination == ""
	case "size":
		return s.Size == ""
	case "filter":
		return s.Filter == ""
	case "kernel":
		return len(s.Kernel) == 0
	case "samples":
		return len(s.Samples) == 0
	}
	return false
}
