package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labset/internal/dataset"
)

type payload struct {
	Label  string    `json:"l"`
	Values []float64 `json:"values"`
	Note   string    `json:"note,omitempty"`
}

func readManifest(t *testing.T, dir string) Manifest {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(dir, ManifestName))
	require.NoError(t, err)
	var m Manifest
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
		ok   bool
	}{
		{"", JSON, true},
		{"json", JSON, true},
		{"MsgPack", MsgPack, true},
		{"xml", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			f, err := ParseFormat(tt.in)
			if !tt.ok {
				assert.ErrorIs(t, err, dataset.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestDirSinkJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink, err := NewDirSink(dir, "JSON", nil)
	require.NoError(t, err)
	_, err = uuid.Parse(sink.RunID())
	require.NoError(t, err)

	require.NoError(t, sink.Export("similarity", [][]float64{{0, 1}, {1, 0}}))
	require.NoError(t, sink.Export("tree", payload{Label: "a", Values: []float64{1}}))

	raw, err := os.ReadFile(filepath.Join(dir, "similarity.json"))
	require.NoError(t, err)
	var sim [][]float64
	require.NoError(t, json.Unmarshal(raw, &sim))
	assert.Equal(t, [][]float64{{0, 1}, {1, 0}}, sim)

	m := readManifest(t, dir)
	assert.Equal(t, sink.RunID(), m.RunID)
	require.Len(t, m.Artifacts, 2)
	assert.Equal(t, "tree.json", m.Artifacts[1].File)
	assert.Equal(t, JSON, m.Artifacts[1].Format)
}

func TestDirSinkReplaces(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(dir, JSON, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Export("pca", []int{1}))
	require.NoError(t, sink.Export("pca", []int{2}))

	raw, err := os.ReadFile(filepath.Join(dir, "pca.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `[2]`, string(raw))
	assert.Len(t, sink.Manifest().Artifacts, 1)
	assert.Len(t, readManifest(t, dir).Artifacts, 1)
}

func TestDirSinkMsgpack(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewDirSink(dir, MsgPack, nil)
	require.NoError(t, err)

	want := payload{Label: "A_1", Values: []float64{0.5, 2}}
	require.NoError(t, sink.Export("spectra", want))

	raw, err := os.ReadFile(filepath.Join(dir, "spectra.msgpack"))
	require.NoError(t, err)

	var got payload
	require.NoError(t, Decode(MsgPack, raw, &got))
	assert.Equal(t, want, got)

	// keys follow the json tags
	var generic map[string]any
	require.NoError(t, Decode(MsgPack, raw, &generic))
	assert.Contains(t, generic, "l")
	assert.NotContains(t, generic, "note")
}

func TestDirSinkNames(t *testing.T) {
	sink, err := NewDirSink(t.TempDir(), JSON, nil)
	require.NoError(t, err)

	for _, name := range []string{"", "a/b", "..", "manifest"} {
		assert.ErrorIs(t, sink.Export(name, 1), dataset.ErrValidation, name)
	}
	assert.Empty(t, sink.Manifest().Artifacts)

	_, err = NewDirSink("", JSON, nil)
	assert.ErrorIs(t, err, dataset.ErrConfiguration)
	_, err = NewDirSink(t.TempDir(), "csv", nil)
	assert.ErrorIs(t, err, dataset.ErrConfiguration)
}

func TestMemorySink(t *testing.T) {
	sink := NewMemorySink()
	require.NoError(t, sink.Export("b", 2))
	require.NoError(t, sink.Export("a", 1))
	require.NoError(t, sink.Export("a", 3))

	assert.Equal(t, []string{"a", "b"}, sink.Names())
	v, ok := sink.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	_, ok = sink.Get("c")
	assert.False(t, ok)

	assert.ErrorIs(t, sink.Export("", 1), dataset.ErrValidation)
}

func TestToVisualizer(t *testing.T) {
	e := &dataset.Element{ID: "A_1", Metadata: map[string]string{}, Color: "#000000"}
	c := dataset.New([]*dataset.Element{e}, ".", dataset.Env{})

	sink := NewMemorySink()
	require.NoError(t, c.ToVisualizer(sink, "data"))
	v, ok := sink.Get("data")
	require.True(t, ok)
	assert.Equal(t, c.Data, v)
}
