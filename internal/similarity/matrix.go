package similarity

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"labset/internal/dataset"
)

// Options configures Matrix.
type Options struct {
	// Workers > 1 fills rows concurrently once every artifact is loaded.
	Workers int
}

// Matrix compares every pair of elements of version and returns the
// symmetric matrix of results. Each artifact is loaded once; the upper
// triangle, diagonal included, is computed and mirrored.
func Matrix(c *dataset.Collection, version string, cmp Comparator, opts Options) (*mat.SymDense, error) {
	log := c.Log()
	log.Info("starting similarity matrix", "version", version, "comparator", cmp)

	if cmp == nil {
		return nil, dataset.Configurationf("a comparator is required")
	}
	if !c.HasVersion(version) {
		return nil, dataset.Validationf("the version %q is not loaded or does not exist", version)
	}
	r, err := cmp.resolve(c.Env().FS)
	if err != nil {
		return nil, err
	}
	if r.arrays {
		if dt := c.DataType(version); dt != dataset.TypeArray {
			return nil, dataset.Validationf("the data type (%s) can not be used to compute similarities", dt)
		}
	}

	n := c.Len()
	if n == 0 {
		return &mat.SymDense{}, nil
	}

	log.Info("loading data", "version", version, "elements", n)
	values := make([]any, n)
	for i, e := range c.Data {
		a := e.Artifact(version)
		if a == nil {
			return nil, dataset.Validationf("element %s has no version %q", e.ID, version)
		}
		v, err := r.load(a.Filename)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", a.Filename, err)
		}
		values[i] = r.mapv(v)
	}
	if r.arrays {
		want := len(values[0].([]float64))
		for i, v := range values {
			if got := len(v.([]float64)); got != want {
				return nil, dataset.Validationf("element %s has %d values, expected %d", c.Data[i].ID, got, want)
			}
		}
	}

	log.Info("computing similarities", "pairs", n*(n-1)/2)
	sim := mat.NewSymDense(n, nil)
	fillRow := func(i int) {
		log.Debug("processing row", "row", i+1, "of", n)
		for j := i; j < n; j++ {
			sim.SetSym(i, j, r.compare(values[i], values[j]))
		}
	}

	if opts.Workers <= 1 {
		for i := 0; i < n; i++ {
			fillRow(i)
		}
	} else {
		fillParallel(n, opts.Workers, fillRow)
	}

	log.Info("end of similarity matrix")
	return sim, nil
}

// fillParallel hands row indices to workers. Rows write disjoint cells.
func fillParallel(n, workers int, fillRow func(int)) {
	rows := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range rows {
				fillRow(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		rows <- i
	}
	close(rows)
	wg.Wait()
}

// Rows returns m as a slice of rows.
func Rows(m mat.Symmetric) [][]float64 {
	n := m.SymmetricDim()
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
