// Package spectrum is the spectrum collaborator: a one-dimensional x/y signal
// read from JCAMP-DX files, with the numeric filters applied by the
// processing dispatcher.
package spectrum

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Spectrum is an ordered series of points. X is usually monotonic but may be
// decreasing.
type Spectrum struct {
	Title    string
	DataType string
	XUnits   string
	YUnits   string

	X []float64
	Y []float64
}

// NbPoints returns the number of points.
func (s *Spectrum) NbPoints() int { return len(s.Y) }

// FirstX returns the abscissa of the first point, or NaN when empty.
func (s *Spectrum) FirstX() float64 {
	if len(s.X) == 0 {
		return math.NaN()
	}
	return s.X[0]
}

// LastX returns the abscissa of the last point, or NaN when empty.
func (s *Spectrum) LastX() float64 {
	if len(s.X) == 0 {
		return math.NaN()
	}
	return s.X[len(s.X)-1]
}

// XRange returns the smallest and largest of FirstX and LastX.
func (s *Spectrum) XRange() (from, to float64) {
	a, b := s.FirstX(), s.LastX()
	return math.Min(a, b), math.Max(a, b)
}

// MinY returns the smallest ordinate, or NaN when empty.
func (s *Spectrum) MinY() float64 {
	if len(s.Y) == 0 {
		return math.NaN()
	}
	return floats.Min(s.Y)
}

// YShift adds d to every ordinate.
func (s *Spectrum) YShift(d float64) {
	floats.AddConst(d, s.Y)
}

// SNV applies the standard normal variate: centre on the mean and divide by
// the standard deviation. A flat spectrum is only centred.
func (s *Spectrum) SNV() {
	if len(s.Y) == 0 {
		return
	}
	mean, std := stat.MeanStdDev(s.Y, nil)
	floats.AddConst(-mean, s.Y)
	if std > 0 && !math.IsNaN(std) {
		floats.Scale(1/std, s.Y)
	}
}

// Power raises every ordinate to p.
func (s *Spectrum) Power(p float64) {
	for i, v := range s.Y {
		s.Y[i] = math.Pow(v, p)
	}
}

// Log replaces every ordinate by its logarithm in base.
func (s *Spectrum) Log(base float64) {
	lb := math.Log(base)
	for i, v := range s.Y {
		s.Y[i] = math.Log(v) / lb
	}
}

// Correlation slides kernel over the ordinates. The result has n-m+1 points
// and each abscissa is the mean of the abscissas under the window.
func (s *Spectrum) Correlation(kernel []float64) error {
	m := len(kernel)
	n := len(s.Y)
	if m == 0 {
		return fmt.Errorf("empty correlation kernel")
	}
	if m > n {
		return fmt.Errorf("kernel of %d values is longer than the spectrum (%d points)", m, n)
	}

	x := make([]float64, n-m+1)
	y := make([]float64, n-m+1)
	for i := range y {
		y[i] = floats.Dot(kernel, s.Y[i:i+m])
		x[i] = floats.Sum(s.X[i:i+m]) / float64(m)
	}
	s.X, s.Y = x, y
	return nil
}

// FillWith sets every ordinate whose abscissa lies in [from, to] to value.
func (s *Spectrum) FillWith(from, to, value float64) {
	from, to = math.Min(from, to), math.Max(from, to)
	for i, x := range s.X {
		if x >= from && x <= to {
			s.Y[i] = value
		}
	}
}

// SuppressZone removes the points whose abscissa lies in [from, to].
func (s *Spectrum) SuppressZone(from, to float64) {
	from, to = math.Min(from, to), math.Max(from, to)
	x := s.X[:0]
	y := s.Y[:0]
	for i, v := range s.X {
		if v >= from && v <= to {
			continue
		}
		x = append(x, v)
		y = append(y, s.Y[i])
	}
	s.X, s.Y = x, y
}

// EquallySpaced resamples the spectrum on n equally spaced abscissas between
// from and to. Each value is the mean of the piecewise-linear signal over the
// slot centred on its abscissa; the signal is zero outside its range.
func (s *Spectrum) EquallySpaced(from, to float64, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("number of points must be positive, got %d", n)
	}
	if len(s.X) == 0 {
		return nil, fmt.Errorf("empty spectrum")
	}

	xs, ys := s.ascending()
	out := make([]float64, n)
	if n == 1 || from == to {
		lo, hi := math.Min(from, to), math.Max(from, to)
		v := 0.0
		if hi > lo {
			v = integrate(xs, ys, lo, hi) / (hi - lo)
		} else {
			v = interpolate(xs, ys, lo)
		}
		for i := range out {
			out[i] = v
		}
		return out, nil
	}

	step := (to - from) / float64(n-1)
	half := math.Abs(step) / 2
	for i := range out {
		c := from + float64(i)*step
		out[i] = integrate(xs, ys, c-half, c+half) / (2 * half)
	}
	return out, nil
}

// ascending returns the points sorted by abscissa.
func (s *Spectrum) ascending() ([]float64, []float64) {
	idx := make([]int, len(s.X))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.X[idx[a]] < s.X[idx[b]] })
	xs := make([]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, k := range idx {
		xs[i] = s.X[k]
		ys[i] = s.Y[k]
	}
	return xs, ys
}

// interpolate evaluates the piecewise-linear signal at x.
func interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if x < xs[0] || x > xs[n-1] {
		return 0
	}
	i := sort.SearchFloat64s(xs, x)
	if i < n && xs[i] == x {
		return ys[i]
	}
	x0, x1 := xs[i-1], xs[i]
	return ys[i-1] + (ys[i]-ys[i-1])*(x-x0)/(x1-x0)
}

// integrate returns the integral of the piecewise-linear signal over [a, b].
func integrate(xs, ys []float64, a, b float64) float64 {
	n := len(xs)
	lo := math.Max(a, xs[0])
	hi := math.Min(b, xs[n-1])
	if hi <= lo {
		return 0
	}

	sum := 0.0
	for i := 0; i+1 < n; i++ {
		x0, x1 := xs[i], xs[i+1]
		if x1 <= lo || x0 >= hi || x1 == x0 {
			continue
		}
		l := math.Max(x0, lo)
		r := math.Min(x1, hi)
		yl := ys[i] + (ys[i+1]-ys[i])*(l-x0)/(x1-x0)
		yr := ys[i] + (ys[i+1]-ys[i])*(r-x0)/(x1-x0)
		sum += (yl + yr) / 2 * (r - l)
	}
	return sum
}

// Clone returns a deep copy of s.
func (s *Spectrum) Clone() *Spectrum {
	c := *s
	c.X = append([]float64(nil), s.X...)
	c.Y = append([]float64(nil), s.Y...)
	return &c
}
