// Package similarity computes symmetric similarity or distance matrices over
// one version of a collection.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"labset/internal/dataset"
	"labset/internal/storage"
)

// Func compares two vectors of the same length.
type Func func(a, b []float64) float64

// Normalization rescales a vector before comparison.
type Normalization string

const (
	NormalizeNone Normalization = "none"
	NormalizeUnit Normalization = "unit" // Euclidean norm 1
	NormalizeSum  Normalization = "sum"  // values sum to 1
	NormalizeMax  Normalization = "max"  // largest value is 1
)

var (
	registryMu sync.RWMutex
	registry   = map[string]Func{
		"euclidean":            Euclidean,
		"squared-euclidean":    SquaredEuclidean,
		"manhattan":            Manhattan,
		"chebyshev":            Chebyshev,
		"cosine":               Cosine,
		"pearson":              Pearson,
		"tanimoto":             Tanimoto,
		"euclidean-similarity": EuclideanSimilarity,
	}
	// similarities grow with likeness; every other entry is a distance.
	similarities = map[string]bool{
		"cosine":               true,
		"pearson":              true,
		"tanimoto":             true,
		"euclidean-similarity": true,
	}
)

// Register adds or replaces a named distance function.
func Register(name string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
	delete(similarities, name)
}

// RegisterSimilarity adds or replaces a named function whose value grows
// with likeness.
func RegisterSimilarity(name string, fn Func) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = fn
	similarities[name] = true
}

// IsSimilarity reports whether the named function measures likeness rather
// than distance. Clustering merges the smallest values first and needs a
// distance.
func IsSimilarity(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return similarities[name]
}

// Names returns the registered function names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookup(name string) (Func, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

func Euclidean(a, b []float64) float64 { return floats.Distance(a, b, 2) }

func SquaredEuclidean(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func Manhattan(a, b []float64) float64 { return floats.Distance(a, b, 1) }

func Chebyshev(a, b []float64) float64 { return floats.Distance(a, b, math.Inf(1)) }

// Cosine returns the cosine of the angle between a and b; 0 when either is
// the zero vector.
func Cosine(a, b []float64) float64 {
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// Pearson returns the correlation coefficient of a and b.
func Pearson(a, b []float64) float64 { return stat.Correlation(a, b, nil) }

// Tanimoto returns a·b / (|a|² + |b|² - a·b); 1 for two zero vectors.
func Tanimoto(a, b []float64) float64 {
	dot := floats.Dot(a, b)
	den := floats.Dot(a, a) + floats.Dot(b, b) - dot
	if den == 0 {
		return 1
	}
	return dot / den
}

// EuclideanSimilarity maps the Euclidean distance into (0, 1].
func EuclideanSimilarity(a, b []float64) float64 { return 1 / (1 + Euclidean(a, b)) }

// Comparator is what Matrix compares elements with: either a Registered
// function over array data or a Raw function over anything.
type Comparator interface {
	resolve(fs storage.FS) (*resolved, error)
}

// Registered names a function of the registry. It only applies to array
// versions.
type Registered struct {
	Name      string
	Normalize Normalization
}

// Raw compares values loaded by Load and passed through Map. It bypasses
// the data type check.
type Raw struct {
	Compare func(a, b any) float64
	// Map prepares a loaded value for Compare. Nil leaves it unchanged.
	Map func(v any) any
	// Load reads one artifact. Nil reads a JSON array of numbers.
	Load func(path string) (any, error)
}

// resolved is what both comparator shapes reduce to: read an artifact, map
// it to a comparable value, compare two mapped values.
type resolved struct {
	load    func(path string) (any, error)
	mapv    func(v any) any
	compare func(a, b any) float64
	arrays  bool
}

func identity(v any) any { return v }

func loadArray(fs storage.FS) func(string) ([]float64, error) {
	return func(path string) ([]float64, error) {
		var v []float64
		if err := fs.LoadJSON(path, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (r Registered) resolve(fs storage.FS) (*resolved, error) {
	fn, ok := lookup(r.Name)
	if !ok {
		return nil, dataset.Validationf("unknown comparison function %q (known: %v)", r.Name, Names())
	}
	norm := r.Normalize
	switch norm {
	case "", NormalizeNone, NormalizeUnit, NormalizeSum, NormalizeMax:
	default:
		return nil, dataset.Validationf("unknown normalization %q", norm)
	}

	read := loadArray(fs)
	return &resolved{
		load:    func(path string) (any, error) { return read(path) },
		mapv:    func(v any) any { return Map(v.([]float64), norm) },
		compare: func(a, b any) float64 { return fn(a.([]float64), b.([]float64)) },
		arrays:  true,
	}, nil
}

func (r Raw) resolve(fs storage.FS) (*resolved, error) {
	if r.Compare == nil {
		return nil, dataset.Configurationf("raw comparator without a compare function")
	}
	load := r.Load
	if load == nil {
		read := loadArray(fs)
		load = func(path string) (any, error) { return read(path) }
	}
	mapv := r.Map
	if mapv == nil {
		mapv = identity
	}
	return &resolved{load: load, mapv: mapv, compare: r.Compare}, nil
}

// Map applies a normalization to a copy of v.
func Map(v []float64, norm Normalization) []float64 {
	out := append([]float64(nil), v...)
	var scale float64
	switch norm {
	case NormalizeUnit:
		scale = floats.Norm(out, 2)
	case NormalizeSum:
		scale = floats.Sum(out)
	case NormalizeMax:
		if len(out) > 0 {
			scale = floats.Max(out)
		}
	default:
		return out
	}
	if scale != 0 {
		floats.Scale(1/scale, out)
	}
	return out
}

// String implements fmt.Stringer for logging.
func (r Registered) String() string { return r.Name }

func (r Raw) String() string { return fmt.Sprintf("raw(%p)", r.Compare) }
