package process

import (
	"fmt"

	"labset/internal/dataset"
	"labset/internal/spectrum"
)

// SpectrumFilter is a whole-spectrum filter.
type SpectrumFilter string

const (
	FilterSNV              SpectrumFilter = "snv"
	FilterBaseline         SpectrumFilter = "baseline"
	FilterFirstDerivative  SpectrumFilter = "first-derivative"
	FilterSecondDerivative SpectrumFilter = "second-derivative"
	FilterSquare           SpectrumFilter = "square"
	FilterSquareRoot       SpectrumFilter = "square-root"
	FilterLog              SpectrumFilter = "log"
)

// ParseSpectrumFilter parses a filter name case-insensitively; "_" and "-"
// are interchangeable.
func ParseSpectrumFilter(s string) (SpectrumFilter, error) {
	switch f := SpectrumFilter(normalizeName(s)); f {
	case FilterSNV, FilterBaseline, FilterFirstDerivative, FilterSecondDerivative,
		FilterSquare, FilterSquareRoot, FilterLog:
		return f, nil
	}
	return "", dataset.Validationf("the requested spectrum filter %q does not exist", s)
}

var derivativeKernel = []float64{-1, 1}

// apply runs f on s.
func (f SpectrumFilter) apply(s *spectrum.Spectrum) error {
	switch f {
	case FilterSNV:
		s.SNV()
	case FilterBaseline:
		s.YShift(-s.MinY())
	case FilterSquare:
		s.Power(2)
	case FilterSquareRoot:
		s.YShift(-s.MinY())
		s.Power(0.5)
	case FilterLog:
		s.YShift(-s.MinY() + 1)
		s.Log(10)
	case FilterFirstDerivative:
		return s.Correlation(derivativeKernel)
	case FilterSecondDerivative:
		if err := s.Correlation(derivativeKernel); err != nil {
			return err
		}
		return s.Correlation(derivativeKernel)
	default:
		return fmt.Errorf("unknown spectrum filter %q", f)
	}
	return nil
}

// Spectra reads and writes spectrum files.
type Spectra interface {
	Load(path string) (*spectrum.Spectrum, error)
	Save(s *spectrum.Spectrum, path string) error
}

// JCAMPFiles stores spectra as JCAMP-DX files.
type JCAMPFiles struct{}

func (JCAMPFiles) Load(path string) (*spectrum.Spectrum, error) { return spectrum.Load(path) }

func (JCAMPFiles) Save(s *spectrum.Spectrum, path string) error { return s.Save(path) }

// FillOptions configures Fill. Nil bounds default to the spectrum's own x
// extrema. A Value of -1 removes the zone instead of filling it.
type FillOptions struct {
	Options
	From, To *float64
	Value    float64
}

// RemoveZone is the Fill value that removes the zone.
const RemoveZone = -1

// ArrayOptions configures GetArray. Nil bounds default to the spectrum's own
// x extrema and a zero NbPoints keeps the native number of points.
type ArrayOptions struct {
	Options
	From, To *float64
	NbPoints int
}

// SpectrumProcessor runs the spectrum operations of the dispatcher.
type SpectrumProcessor struct {
	c       *dataset.Collection
	spectra Spectra
}

// NewSpectrumProcessor returns a processor over c. Nil spectra uses JCAMP-DX
// files.
func NewSpectrumProcessor(c *dataset.Collection, spectra Spectra) *SpectrumProcessor {
	if spectra == nil {
		spectra = JCAMPFiles{}
	}
	return &SpectrumProcessor{c: c, spectra: spectra}
}

func (p *SpectrumProcessor) run(pl *plan, fn func(e *dataset.Element, src string, s *spectrum.Spectrum) error) error {
	if err := pl.prepare(); err != nil {
		return err
	}
	return pl.each(func(e *dataset.Element, src string) error {
		s, err := p.spectra.Load(src)
		if err != nil {
			return fmt.Errorf("loading %s: %w", src, err)
		}
		return fn(e, src, s)
	})
}

// save writes s under the same file name into the target directory.
func (p *SpectrumProcessor) save(pl *plan, e *dataset.Element, src string, s *spectrum.Spectrum) error {
	path := pl.path(0, src, "")
	if err := p.spectra.Save(s, path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	pl.record(e, 0, path, nil)
	return nil
}

// Filter applies filter to every spectrum of version.
func (p *SpectrumProcessor) Filter(version, destination string, filter SpectrumFilter, opts Options) error {
	if err := validate(p.c, version, destination, dataset.TypeSpectrum); err != nil {
		return err
	}
	filter, err := ParseSpectrumFilter(string(filter))
	if err != nil {
		return err
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("filtering spectra", "version", version, "filter", filter)
	return p.run(pl, func(e *dataset.Element, src string, s *spectrum.Spectrum) error {
		if err := filter.apply(s); err != nil {
			return fmt.Errorf("filtering %s: %w", src, err)
		}
		return p.save(pl, e, src, s)
	})
}

// Correlation slides kernel over every spectrum of version.
func (p *SpectrumProcessor) Correlation(version, destination string, kernel []float64, opts Options) error {
	if err := validate(p.c, version, destination, dataset.TypeSpectrum); err != nil {
		return err
	}
	if len(kernel) == 0 {
		return dataset.Validationf("the correlation kernel must be a non-empty list of numbers")
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("correlating spectra", "version", version, "kernel", kernel)
	return p.run(pl, func(e *dataset.Element, src string, s *spectrum.Spectrum) error {
		if err := s.Correlation(kernel); err != nil {
			return fmt.Errorf("correlating %s: %w", src, err)
		}
		return p.save(pl, e, src, s)
	})
}

// bounds resolves optional bounds against the x extrema of s.
func bounds(s *spectrum.Spectrum, from, to *float64) (float64, float64) {
	lo, hi := s.XRange()
	if from != nil {
		lo = *from
	}
	if to != nil {
		hi = *to
	}
	return lo, hi
}

// Fill sets a zone of every spectrum of version to a constant, or removes it.
func (p *SpectrumProcessor) Fill(version, destination string, opts FillOptions) error {
	if err := validate(p.c, version, destination, dataset.TypeSpectrum); err != nil {
		return err
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("filling spectra", "version", version, "value", opts.Value)
	return p.run(pl, func(e *dataset.Element, src string, s *spectrum.Spectrum) error {
		from, to := bounds(s, opts.From, opts.To)
		if opts.Value == RemoveZone {
			s.SuppressZone(from, to)
		} else {
			s.FillWith(from, to, opts.Value)
		}
		return p.save(pl, e, src, s)
	})
}

// GetArray resamples every spectrum of version on equally spaced abscissas
// and saves the values as an .array file.
func (p *SpectrumProcessor) GetArray(version, destination string, opts ArrayOptions) error {
	if err := validate(p.c, version, destination, dataset.TypeSpectrum); err != nil {
		return err
	}
	if opts.NbPoints < 0 {
		return dataset.Validationf("number of points must not be negative, got %d", opts.NbPoints)
	}
	pl, err := newPlan(p.c, version, destination, opts.Overwrite)
	if err != nil {
		return err
	}

	p.c.Log().Info("resampling spectra", "version", version, "points", opts.NbPoints)
	fs := p.c.Env().FS
	return p.run(pl, func(e *dataset.Element, src string, s *spectrum.Spectrum) error {
		from, to := bounds(s, opts.From, opts.To)
		n := opts.NbPoints
		if n == 0 {
			n = s.NbPoints()
		}
		values, err := s.EquallySpaced(from, to, n)
		if err != nil {
			return fmt.Errorf("resampling %s: %w", src, err)
		}
		path := pl.path(0, src, ".array")
		if err := fs.SaveJSON(path, values); err != nil {
			return fmt.Errorf("saving %s: %w", path, err)
		}
		pl.record(e, 0, path, nil)
		return nil
	})
}
