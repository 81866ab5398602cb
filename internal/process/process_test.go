package process

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labset/internal/dataset"
	"labset/internal/spectrum"
)

// writeSpectra writes one JCAMP-DX file per id under root/version.
func writeSpectra(t *testing.T, root, version string, ids ...string) {
	t.Helper()
	for k, id := range ids {
		s := &spectrum.Spectrum{
			Title: id,
			X:     []float64{1, 2, 3, 4, 5},
			Y:     []float64{1, 2, 3, 4, float64(5 + k)},
		}
		require.NoError(t, s.Save(filepath.Join(root, version, id+".jdx")))
	}
}

// writeFiles creates empty files under root/version.
func writeFiles(t *testing.T, root, version string, names ...string) {
	t.Helper()
	dir := filepath.Join(root, version)
	require.NoError(t, os.MkdirAll(dir, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
}

func load(t *testing.T, root, version string, logs *bytes.Buffer) *dataset.Collection {
	t.Helper()
	if logs == nil {
		logs = &bytes.Buffer{}
	}
	env := dataset.Env{Log: slog.New(slog.NewTextHandler(logs, nil))}
	opts := dataset.DefaultLoadOptions()
	opts.Version = dataset.Version(version)
	c, err := dataset.Load(env, root, opts)
	require.NoError(t, err)
	return c
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	return names
}

func TestSpectrumFilterSNV(t *testing.T) {
	root := t.TempDir()
	writeSpectra(t, root, "v", "A_1", "A_2", "B_1")
	c := load(t, root, "v", nil)

	p := NewSpectrumProcessor(c, nil)
	require.NoError(t, p.Filter("v", "snv", FilterSNV, Options{}))

	assert.Len(t, listDir(t, filepath.Join(root, "v_snv")), 3)
	assert.Contains(t, c.Versions(), "v_snv")
	for _, e := range c.Data {
		a := e.Artifact("v_snv")
		require.NotNil(t, a, e.ID)
		assert.Equal(t, filepath.Join(root, "v_snv", e.ID+".jdx"), a.Filename)
		assert.Equal(t, "jcamp", a.ViewFile.Type)
		assert.Equal(t, a.Filename, a.ViewFile.URL)

		s, err := spectrum.Load(a.Filename)
		require.NoError(t, err)
		sum := 0.0
		for _, y := range s.Y {
			sum += y
		}
		assert.InDelta(t, 0, sum, 1e-9)
	}
}

func TestOverwrite(t *testing.T) {
	root := t.TempDir()
	writeSpectra(t, root, "v", "A_1", "A_2", "B_1")
	writeFiles(t, root, "v_snv", "keep.txt")
	var logs bytes.Buffer
	c := load(t, root, "v", &logs)
	p := NewSpectrumProcessor(c, nil)

	err := p.Filter("v", "snv", FilterSNV, Options{})
	require.ErrorIs(t, err, dataset.ErrValidation)
	assert.Equal(t, []string{"keep.txt"}, listDir(t, filepath.Join(root, "v_snv")))
	assert.NotContains(t, c.Versions(), "v_snv")
	assert.Nil(t, c.Data[0].Artifact("v_snv"))

	require.NoError(t, p.Filter("v", "snv", FilterSNV, Options{Overwrite: true}))
	assert.Equal(t, []string{"A_1.jdx", "A_2.jdx", "B_1.jdx"}, listDir(t, filepath.Join(root, "v_snv")))
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "directory content overwritten")
}

func TestFileInTheWayIsNotAConflict(t *testing.T) {
	root := t.TempDir()
	writeSpectra(t, root, "v", "A_1", "A_2")
	require.NoError(t, os.WriteFile(filepath.Join(root, "v_snv"), []byte("x"), 0644))
	c := load(t, root, "v", nil)
	p := NewSpectrumProcessor(c, nil)

	err := p.Filter("v", "snv", FilterSNV, Options{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, dataset.ErrValidation)
	assert.NotContains(t, c.Versions(), "v_snv")
	assert.FileExists(t, filepath.Join(root, "v_snv"))
}

func TestSpectrumValidation(t *testing.T) {
	root := t.TempDir()
	writeSpectra(t, root, "original", "A_1", "A_2")
	c := load(t, root, "original", nil)
	p := NewSpectrumProcessor(c, nil)

	tests := []struct {
		name string
		run  func() error
		msg  string
	}{
		{"forbidden destination", func() error { return p.Filter("nope", "bad name", FilterSNV, Options{}) }, "forbidden characters"},
		{"underscore in destination", func() error { return p.Filter("original", "a_b", FilterSNV, Options{}) }, "forbidden characters"},
		{"unknown version", func() error { return p.Filter("nope", "x", "unknown", Options{}) }, "not loaded"},
		{"unknown filter", func() error { return p.Filter("original", "x", "blur", Options{}) }, "does not exist"},
		{"empty kernel", func() error { return p.Correlation("original", "x", nil, Options{}) }, "kernel"},
		{"negative points", func() error { return p.GetArray("original", "x", ArrayOptions{NbPoints: -1}) }, "points"},
		{"image operation", func() error {
			return NewImageProcessor(c, &fakeLoader{}).Resize("original", "x", "50%", Options{})
		}, "image data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			require.ErrorIs(t, err, dataset.ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
	assert.Equal(t, []string{"original"}, listDir(t, root))
	assert.Equal(t, []string{"original"}, c.Versions())
}

func TestParseSpectrumFilter(t *testing.T) {
	for in, want := range map[string]SpectrumFilter{
		"SNV":               FilterSNV,
		"second_derivative": FilterSecondDerivative,
		"Square-Root":       FilterSquareRoot,
		" log ":             FilterLog,
	} {
		got, err := ParseSpectrumFilter(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseSpectrumFilter("smooth")
	assert.ErrorIs(t, err, dataset.ErrValidation)
}

func TestSpectrumFilters(t *testing.T) {
	tests := []struct {
		filter SpectrumFilter
		wantX  []float64
		wantY  []float64
	}{
		{FilterBaseline, []float64{1, 2, 3}, []float64{0, 3, 8}},
		{FilterSquare, []float64{1, 2, 3}, []float64{1, 16, 81}},
		{FilterSquareRoot, []float64{1, 2, 3}, []float64{0, 3, 8}},
		{FilterFirstDerivative, []float64{1.5, 2.5}, []float64{3, 5}},
		{FilterSecondDerivative, []float64{2}, []float64{2}},
	}
	for _, tt := range tests {
		t.Run(string(tt.filter), func(t *testing.T) {
			s := &spectrum.Spectrum{X: []float64{1, 2, 3}, Y: []float64{1, 4, 9}}
			if tt.filter == FilterSquareRoot {
				s.Y = []float64{1, 10, 65}
			}
			require.NoError(t, tt.filter.apply(s))
			assert.Equal(t, tt.wantX, s.X)
			assert.InDeltaSlice(t, tt.wantY, s.Y, 1e-12)
		})
	}

	s := &spectrum.Spectrum{X: []float64{1, 2}, Y: []float64{5, 104}}
	require.NoError(t, FilterLog.apply(s))
	assert.InDeltaSlice(t, []float64{0, 2}, s.Y, 1e-12)
}

func TestCorrelationAndFill(t *testing.T) {
	root := t.TempDir()
	writeSpectra(t, root, "original", "A_1")
	c := load(t, root, "original", nil)
	p := NewSpectrumProcessor(c, nil)

	require.NoError(t, p.Correlation("original", "corr", []float64{1, 1}, Options{}))
	s, err := spectrum.Load(c.Data[0].Artifact("corr").Filename)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 5, 7, 9}, s.Y)

	from, to := 2.0, 3.0
	require.NoError(t, p.Fill("original", "zero", FillOptions{From: &from, To: &to, Value: 0}))
	s, err = spectrum.Load(c.Data[0].Artifact("zero").Filename)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 4, 5}, s.Y)

	require.NoError(t, p.Fill("original", "cut", FillOptions{From: &from, To: &to, Value: RemoveZone}))
	s, err = spectrum.Load(c.Data[0].Artifact("cut").Filename)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 4, 5}, s.X)

	// derived from a non-original directory
	require.NoError(t, p.Fill("zero", "all", FillOptions{Value: 7}))
	a := c.Data[0].Artifact("zero_all")
	require.NotNil(t, a)
	assert.Equal(t, filepath.Join(root, "zero_all", "A_1.jdx"), a.Filename)
	s, err = spectrum.Load(a.Filename)
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 7, 7, 7, 7}, s.Y)
}

func TestGetArray(t *testing.T) {
	root := t.TempDir()
	writeSpectra(t, root, "original", "A_1", "A_2")
	c := load(t, root, "original", nil)
	p := NewSpectrumProcessor(c, nil)

	from, to := 2.0, 4.0
	require.NoError(t, p.GetArray("original", "arr", ArrayOptions{From: &from, To: &to, NbPoints: 3}))
	assert.Equal(t, dataset.TypeArray, c.DataType("arr"))

	a := c.Data[0].Artifact("arr")
	require.NotNil(t, a)
	assert.Equal(t, filepath.Join(root, "arr", "A_1.array"), a.Filename)
	assert.Equal(t, "array", a.ViewFile.Type)

	raw, err := os.ReadFile(a.Filename)
	require.NoError(t, err)
	var values []float64
	require.NoError(t, json.Unmarshal(raw, &values))
	assert.InDeltaSlice(t, []float64{2, 3, 4}, values, 1e-12)

	require.NoError(t, p.GetArray("original", "native", ArrayOptions{}))
	raw, err = os.ReadFile(c.Data[1].Artifact("native").Filename)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &values))
	assert.Len(t, values, 5)
}

func TestTargetName(t *testing.T) {
	assert.Equal(t, "snv", TargetName("original", "snv"))
	assert.Equal(t, "v_snv", TargetName("v", "snv"))
	assert.Equal(t, "small_grey", TargetName("small", "grey"))
}
