// Package pca runs a principal component analysis over the array version of
// a collection and builds the scatter payloads shown by the viewer.
package pca

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"labset/internal/dataset"
)

// Options configures Run.
type Options struct {
	// NPC is the number of components kept. Zero means 2.
	NPC int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{NPC: 2}
}

// Result is a fitted PCA.
type Result struct {
	// Scores holds one row per element: the centred data projected on the
	// kept components.
	Scores [][]float64 `json:"data"`
	// Variances are the variances of every component, largest first.
	Variances []float64 `json:"variance"`
	// Loadings holds one row per kept component.
	Loadings [][]float64 `json:"loadings"`
	NPC      int         `json:"nPC"`
}

// Run loads the arrays of version and projects them on their first NPC
// principal components.
func Run(c *dataset.Collection, version string, opts Options) (*Result, error) {
	log := c.Log()
	log.Info("starting pca", "version", version)

	if !c.HasVersion(version) {
		return nil, dataset.Validationf("the version %q is not loaded or does not exist", version)
	}
	if dt := c.DataType(version); dt != dataset.TypeArray {
		return nil, dataset.Validationf("PCA can only be applied on arrays, version %q holds %s", version, dt)
	}
	npc := opts.NPC
	if npc == 0 {
		npc = DefaultOptions().NPC
	}
	if npc < 0 {
		return nil, dataset.Validationf("number of components must be positive, got %d", npc)
	}

	log.Info("loading the data", "version", version)
	x, err := loadArrays(c, version)
	if err != nil {
		return nil, err
	}
	n, d := x.Dims()
	if k := min(n, d); npc > k {
		return nil, dataset.Validationf("cannot compute %d components from %d elements of %d values", npc, n, d)
	}

	log.Info("computing pca", "components", npc)
	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return nil, dataset.Validationf("principal component analysis of %q did not converge", version)
	}
	var vecs mat.Dense
	pc.VectorsTo(&vecs)
	vars := pc.VarsTo(nil)

	loadings := vecs.Slice(0, d, 0, npc)
	centered := center(x)
	var scores mat.Dense
	scores.Mul(centered, loadings)

	res := &Result{
		Scores:    rows(&scores),
		Variances: vars,
		NPC:       npc,
	}
	lt := mat.DenseCopyOf(loadings.T())
	res.Loadings = rows(lt)
	log.Info("end of pca")
	return res, nil
}

func loadArrays(c *dataset.Collection, version string) (*mat.Dense, error) {
	fs := c.Env().FS
	var x *mat.Dense
	for i, e := range c.Data {
		a := e.Artifact(version)
		if a == nil {
			return nil, dataset.Validationf("element %s has no version %q", e.ID, version)
		}
		var v []float64
		if err := fs.LoadJSON(a.Filename, &v); err != nil {
			return nil, fmt.Errorf("loading %s: %w", a.Filename, err)
		}
		if x == nil {
			if len(v) == 0 {
				return nil, dataset.Validationf("element %s has no values", e.ID)
			}
			x = mat.NewDense(c.Len(), len(v), nil)
		}
		if _, d := x.Dims(); len(v) != d {
			return nil, dataset.Validationf("element %s has %d values, expected %d", e.ID, len(v), d)
		}
		x.SetRow(i, v)
	}
	if x == nil {
		return nil, dataset.Validationf("no element to analyse")
	}
	return x, nil
}

// center returns x with every column mean subtracted.
func center(x *mat.Dense) *mat.Dense {
	n, d := x.Dims()
	out := mat.DenseCopyOf(x)
	col := make([]float64, n)
	for j := 0; j < d; j++ {
		mat.Col(col, j, x)
		mean := stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			out.Set(i, j, x.At(i, j)-mean)
		}
	}
	return out
}

func rows(m mat.Matrix) [][]float64 {
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
