// Package pipeline owns a collection for the length of a run and executes the
// steps of a pipeline file against it, in order.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"labset/internal/cluster"
	"labset/internal/config"
	"labset/internal/dataset"
	"labset/internal/imaging"
	"labset/internal/pca"
	"labset/internal/process"
	"labset/internal/similarity"
	"labset/internal/storage"
)

// Components are the collaborators a run works with. Nil fields get the
// file-backed defaults, except Sink which is required.
type Components struct {
	FS      storage.FS
	Images  imaging.Loader
	Spectra process.Spectra
	Sink    dataset.Exporter
}

// Runner executes steps over one collection. Stages run synchronously; the
// runner is not safe for concurrent use.
type Runner struct {
	p    *config.Pipeline
	comp Components
	log  *slog.Logger

	c *dataset.Collection
	// matrices caches similarity matrices so a cluster step reuses the
	// matrix of an earlier similarity step with the same parameters.
	matrices map[string]*mat.SymDense
}

// New prepares a runner. Nothing is read until Load or Run.
func New(p *config.Pipeline, comp Components, log *slog.Logger) (*Runner, error) {
	if p == nil {
		return nil, dataset.Configurationf("a pipeline is required")
	}
	if comp.Sink == nil {
		return nil, dataset.Configurationf("an export sink is required")
	}
	if comp.FS == nil {
		comp.FS = storage.OS{}
	}
	if comp.Images == nil {
		comp.Images = imaging.GoCV{}
	}
	if comp.Spectra == nil {
		comp.Spectra = process.JCAMPFiles{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Runner{p: p, comp: comp, log: log, matrices: map[string]*mat.SymDense{}}, nil
}

// Collection returns the collection of the run, nil before Load.
func (r *Runner) Collection() *dataset.Collection {
	return r.c
}

// Load builds the collection from the source root, or restores the
// configured snapshot.
func (r *Runner) Load() error {
	env := dataset.Env{FS: r.comp.FS, Log: r.log}
	if r.p.Snapshot != "" {
		c, err := dataset.LoadSnapshot(env, r.p.Source, r.p.Snapshot)
		if err != nil {
			return err
		}
		r.c = c
		return nil
	}
	opts, err := r.p.Load.Options()
	if err != nil {
		return err
	}
	c, err := dataset.Load(env, r.p.Source, opts)
	if err != nil {
		return err
	}
	r.c = c
	return nil
}

// Run loads the collection if needed and executes every step. It stops at
// the first failing step; the collection keeps what earlier steps did.
func (r *Runner) Run(ctx context.Context) error {
	if r.c == nil {
		if err := r.Load(); err != nil {
			return fmt.Errorf("loading %s: %w", r.p.Source, err)
		}
	}
	for i, s := range r.p.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		r.log.Info("running step", "step", i+1, "op", s.Op, "version", s.Version)
		if err := r.Step(s); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, s.Op, err)
		}
		r.log.Debug("step done", "step", i+1, "op", s.Op, "elapsed", time.Since(start))
	}
	return nil
}

// Step executes a single step against the loaded collection.
func (r *Runner) Step(s config.Step) error {
	if r.c == nil {
		return dataset.Configurationf("no collection loaded")
	}
	c := r.c
	if s.Overwrite {
		// an overwritten version invalidates every matrix computed from it
		clear(r.matrices)
	}
	opts := process.Options{Overwrite: s.Overwrite}
	images := process.NewImageProcessor(c, r.comp.Images)
	spectra := process.NewSpectrumProcessor(c, r.comp.Spectra)

	switch s.Op {
	case config.OpResize:
		return images.Resize(s.Version, s.Destination, s.Size, opts)
	case config.OpCrop:
		return images.Crop(s.Version, s.Destination, s.CropOptions(), opts)
	case config.OpImageFilter:
		f, err := process.ParseImageFilter(s.Filter)
		if err != nil {
			return err
		}
		return images.Filter(s.Version, s.Destination, f, opts)
	case config.OpHistogram:
		return images.Histogram(s.Version, s.Destination, opts)
	case config.OpSplit:
		return images.Split(s.Version, s.Destination, s.Filter, s.SplitOptions())
	case config.OpSplitTest:
		previews, err := images.SplitTest(s.Version, s.Filter, s.SplitOptions())
		if err != nil {
			return err
		}
		return r.comp.Sink.Export(s.Name, previews)

	case config.OpSpectrumFilter:
		f, err := process.ParseSpectrumFilter(s.Filter)
		if err != nil {
			return err
		}
		return spectra.Filter(s.Version, s.Destination, f, opts)
	case config.OpCorrelation:
		return spectra.Correlation(s.Version, s.Destination, s.Kernel, opts)
	case config.OpFill:
		return spectra.Fill(s.Version, s.Destination, process.FillOptions{Options: opts, From: s.From, To: s.To, Value: s.Value})
	case config.OpArray:
		return spectra.GetArray(s.Version, s.Destination, process.ArrayOptions{Options: opts, From: s.From, To: s.To, NbPoints: s.NbPoints})

	case config.OpRemove:
		c.RemoveSamples(s.Samples...)
		// cached matrices no longer line up with the elements
		clear(r.matrices)
		return nil

	case config.OpSimilarity:
		m, err := r.similarity(s)
		if err != nil {
			return err
		}
		return r.comp.Sink.Export(s.Name, similarity.Rows(m))
	case config.OpTarget:
		m := c.TargetMatrix(dataset.TargetOptions{MetadataField: s.Field})
		return r.comp.Sink.Export(s.Name, similarity.Rows(m))
	case config.OpCluster:
		m, err := r.similarity(s)
		if err != nil {
			return err
		}
		tree, err := cluster.Run(c, s.Version, nil, cluster.Options{
			SimilarityMatrix: m,
			Image:            s.Image,
			Linkage:          cluster.Linkage(s.Linkage),
		})
		if err != nil {
			return err
		}
		return r.comp.Sink.Export(s.Name, tree)
	case config.OpPCA:
		res, err := pca.Run(c, s.Version, pca.Options{NPC: s.NPC})
		if err != nil {
			return err
		}
		return r.comp.Sink.Export(s.Name, res)
	case config.OpPCAPlot:
		_, err := pca.Export(c, s.Version, pca.Options{NPC: s.NPC}, r.comp.Sink)
		return err

	case config.OpSave:
		return c.Save(s.Name)
	case config.OpExport:
		return c.ToVisualizer(r.comp.Sink, s.Name)
	}
	return dataset.Configurationf("unknown operation %q", s.Op)
}

// similarity returns the matrix of s, computing it on first use.
func (r *Runner) similarity(s config.Step) (*mat.SymDense, error) {
	key := s.Version + "|" + s.Comparator + "|" + s.Normalize
	if m, ok := r.matrices[key]; ok {
		r.log.Debug("reusing similarity matrix", "version", s.Version, "comparator", s.Comparator)
		return m, nil
	}
	cmp := similarity.Registered{Name: s.Comparator, Normalize: similarity.Normalization(s.Normalize)}
	m, err := similarity.Matrix(r.c, s.Version, cmp, similarity.Options{Workers: r.p.Workers})
	if err != nil {
		return nil, err
	}
	r.matrices[key] = m
	return m, nil
}

// Run executes p with comp and returns the resulting collection.
func Run(ctx context.Context, p *config.Pipeline, comp Components, log *slog.Logger) (*dataset.Collection, error) {
	r, err := New(p, comp, log)
	if err != nil {
		return nil, err
	}
	if err := r.Run(ctx); err != nil {
		return r.Collection(), err
	}
	return r.Collection(), nil
}
