package pca

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labset/internal/dataset"
	"labset/pkg/colorutil"
	"labset/pkg/geometry"
	"labset/pkg/typedref"
)

type sample struct {
	id     string
	batch  string
	values []float64
}

func collection(t *testing.T, samples ...sample) *dataset.Collection {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "arr"), 0755))

	data := make([]*dataset.Element, len(samples))
	for i, s := range samples {
		path := filepath.Join(dir, "arr", s.id+".array")
		raw, err := json.Marshal(s.values)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, raw, 0644))

		e := &dataset.Element{ID: s.id, BatchID: s.batch, Metadata: map[string]string{}, Color: "#000000"}
		e.SetArtifact("arr", path, typedref.Default, nil)
		data[i] = e
	}
	return dataset.New(data, dir, dataset.Env{})
}

func cross(t *testing.T) *dataset.Collection {
	return collection(t,
		sample{"A_1", "A", []float64{1, 0}},
		sample{"A_2", "A", []float64{-1, 0}},
		sample{"B_1", "B", []float64{0, 2}},
		sample{"B_2", "B", []float64{0, -2}},
	)
}

func TestRun(t *testing.T) {
	res, err := Run(cross(t), "arr", Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, res.NPC)
	require.Len(t, res.Variances, 2)
	assert.InDelta(t, 8.0/3, res.Variances[0], 1e-9)
	assert.InDelta(t, 2.0/3, res.Variances[1], 1e-9)

	require.Len(t, res.Scores, 4)
	// the first component follows the second column, up to sign
	assert.InDelta(t, 0, res.Scores[0][0], 1e-9)
	assert.InDelta(t, 2, math.Abs(res.Scores[2][0]), 1e-9)
	assert.InDelta(t, 1, math.Abs(res.Scores[0][1]), 1e-9)

	require.Len(t, res.Loadings, 2)
	assert.InDelta(t, 1, math.Abs(res.Loadings[0][1]), 1e-9)
	assert.InDelta(t, 0, res.Loadings[0][0], 1e-9)
}

func TestRunOneComponent(t *testing.T) {
	res, err := Run(cross(t), "arr", Options{NPC: 1})
	require.NoError(t, err)
	for _, row := range res.Scores {
		assert.Len(t, row, 1)
	}
}

func TestRunErrors(t *testing.T) {
	c := cross(t)

	_, err := Run(c, "missing", Options{})
	assert.ErrorIs(t, err, dataset.ErrValidation)

	_, err = Run(c, "arr", Options{NPC: 3})
	assert.ErrorIs(t, err, dataset.ErrValidation)

	_, err = Run(c, "arr", Options{NPC: -1})
	assert.ErrorIs(t, err, dataset.ErrValidation)

	uneven := collection(t, sample{"A_1", "", []float64{1, 2}}, sample{"A_2", "", []float64{1}})
	_, err = Run(uneven, "arr", Options{})
	assert.ErrorIs(t, err, dataset.ErrValidation)

	e := &dataset.Element{ID: "s", Metadata: map[string]string{}}
	e.SetArtifact("original", "s.jdx", typedref.Default, nil)
	spectra := dataset.New([]*dataset.Element{e}, ".", dataset.Env{})
	_, err = Run(spectra, "original", Options{})
	require.ErrorIs(t, err, dataset.ErrValidation)
	assert.Contains(t, err.Error(), "arrays")
}

func TestSpread(t *testing.T) {
	t.Run("diagonal", func(t *testing.T) {
		el, err := Spread([]geometry.Point2D{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}})
		require.NoError(t, err)
		assert.Equal(t, geometry.Point2D{X: 1, Y: 1}, el.Center)
		assert.InDelta(t, 2*math.Sqrt2, el.Width, 1e-9)
		assert.InDelta(t, 0, el.Height, 1e-6)
		assert.InDelta(t, 45, el.Angle, 1e-9)
	})

	t.Run("circle", func(t *testing.T) {
		el, err := Spread([]geometry.Point2D{{X: 1}, {X: -1}, {Y: 1}, {Y: -1}})
		require.NoError(t, err)
		want := 2 * math.Sqrt(2.0/3)
		assert.InDelta(t, want, el.Width, 1e-9)
		assert.InDelta(t, want, el.Height, 1e-9)
	})

	t.Run("single point", func(t *testing.T) {
		el, err := Spread([]geometry.Point2D{{X: 3, Y: 4}})
		require.NoError(t, err)
		assert.Equal(t, geometry.Ellipse{Center: geometry.Point2D{X: 3, Y: 4}}, el)
	})

	_, err := Spread(nil)
	assert.Error(t, err)
}

type mapSink map[string]any

func (s mapSink) Export(name string, value any) error {
	s[name] = value
	return nil
}

func TestExport(t *testing.T) {
	c := cross(t)
	sink := mapSink{}

	plot, err := Export(c, "arr", Options{}, sink)
	require.NoError(t, err)

	require.Len(t, plot.Points, 4)
	p := plot.Points[2]
	assert.Equal(t, "B_1", p.Label)
	assert.Equal(t, []string{"B"}, p.Highlight)
	assert.Equal(t, c.Data[2].Color, p.Color)
	assert.Equal(t, p.Color, p.LabelColor)
	assert.Equal(t, 1.0, p.Opacity)
	assert.Equal(t, 0.2, p.Width)
	assert.Equal(t, "none", p.Shape)
	assert.InDelta(t, 20, math.Abs(p.X), 1e-9)
	require.NotNil(t, p.JCAMP)
	assert.Equal(t, "array", p.JCAMP.Type)

	require.Len(t, plot.Ellipses, 2)
	b := plot.Ellipses[1]
	assert.Equal(t, "B", b.Highlight)
	assert.Equal(t, "B", b.Label)
	assert.Equal(t, colorutil.HashColor("B"), b.Color)
	assert.Equal(t, 0.2, b.Opacity)
	// batch B is symmetric around the origin
	assert.InDelta(t, 50, b.X, 1e-9)
	assert.InDelta(t, 50, b.Y, 1e-9)
	assert.InDelta(t, 2*math.Sqrt(800), b.Width, 1e-6)

	assert.Equal(t, plot.Points, sink[SpectraName])
	assert.Equal(t, plot.Ellipses, sink[ComponentsName])
	scatter, ok := sink[ScatterName].(Typed)
	require.True(t, ok)
	assert.Equal(t, "loading", scatter.Type)
	s := scatter.Value.(Scatter)
	require.Len(t, s.Series, 2)
	assert.Equal(t, "PCA of arr", s.Series[0].Label)
	assert.Equal(t, "Components", s.Series[1].Category)
	assert.Equal(t, 100.0, s.MaxX)
}

func TestExportUnbatched(t *testing.T) {
	c := collection(t,
		sample{"x", "", []float64{1, 2}},
		sample{"y", "", []float64{3, 1}},
		sample{"z", "", []float64{0, 4}},
	)
	require.Nil(t, c.Batches)
	sink := mapSink{}

	plot, err := Export(c, "arr", Options{}, sink)
	require.NoError(t, err)
	require.Len(t, plot.Points, 3)
	assert.Equal(t, []string{""}, plot.Points[0].Highlight)
	assert.Empty(t, plot.Ellipses)
	assert.NotNil(t, plot.Ellipses)

	assert.Equal(t, plot.Points, sink[SpectraName])
	assert.Equal(t, plot.Ellipses, sink[ComponentsName])
	assert.Contains(t, sink, ScatterName)
}

func TestExportErrors(t *testing.T) {
	_, err := Export(cross(t), "arr", Options{NPC: 1}, mapSink{})
	assert.ErrorIs(t, err, dataset.ErrValidation)
}
