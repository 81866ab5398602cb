package dataset

import (
	"gonum.org/v1/gonum/mat"

	"labset/pkg/typedref"
)

// TargetOptions configures TargetMatrix.
type TargetOptions struct {
	// MetadataField, when set, reads each element's class from metadata.
	// Otherwise the class comes from the file stem of the first version.
	MetadataField string

	// Filter maps a name to its class. Nil keeps what is before the first "_".
	Filter func(string) string
}

// TargetMatrix returns the n×n matrix with 1 where two elements share a class
// and 0 elsewhere.
func (c *Collection) TargetMatrix(opts TargetOptions) *mat.SymDense {
	filter := opts.Filter
	if filter == nil {
		filter = BeforeUnderscore
	}

	n := len(c.Data)
	if n == 0 {
		return &mat.SymDense{}
	}

	classes := make([]string, n)
	for i, e := range c.Data {
		var name string
		if opts.MetadataField != "" {
			name = e.Metadata[opts.MetadataField]
		} else if a := e.Artifact(c.firstVersion(e)); a != nil {
			name = typedref.Stem(a.Filename)
		}
		classes[i] = filter(name)
	}

	target := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if classes[i] == classes[j] {
				target.SetSym(i, j, 1)
			}
		}
	}
	return target
}

// firstVersion returns the first registered version present on e.
func (c *Collection) firstVersion(e *Element) string {
	for _, v := range c.versions {
		if e.Artifact(v) != nil {
			return v
		}
	}
	return ""
}

// Exporter receives named artifacts leaving the core.
type Exporter interface {
	Export(name string, value any) error
}

// ToVisualizer exports the collection elements under name.
func (c *Collection) ToVisualizer(sink Exporter, name string) error {
	return sink.Export(name, c.Data)
}
