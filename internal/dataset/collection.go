package dataset

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"labset/internal/storage"
	"labset/pkg/colorutil"
	"labset/pkg/typedref"
)

// Env bundles the collaborators a Collection works with. Zero fields are
// replaced by defaults.
type Env struct {
	FS      storage.FS
	Palette colorutil.Palette
	Refs    typedref.Resolver
	Log     *slog.Logger
}

func (e Env) withDefaults() Env {
	if e.FS == nil {
		e.FS = storage.OS{}
	}
	if e.Palette == nil {
		e.Palette = colorutil.DefaultPalette()
	}
	if e.Log == nil {
		e.Log = slog.Default()
	}
	return e
}

// Batch is a group of elements sharing a batch identifier. Elements are the
// same pointers held by Collection.Data.
type Batch struct {
	ID       string
	Color    string
	Elements []*Element
}

// Collection is the in-memory aggregate of elements. It is owned by a single
// pipeline; processing stages mutate it in place, analysis stages only read.
type Collection struct {
	Data   []*Element
	Source string

	// Batches is a derived index, rebuilt by GetBatches. Nil means the
	// collection is not batched.
	Batches []*Batch

	versions []string
	env      Env
}

// New builds a collection over data and derives its batches.
func New(data []*Element, source string, env Env) *Collection {
	c := &Collection{
		Data:   data,
		Source: source,
		env:    env.withDefaults(),
	}
	c.versions = versionsOf(data)
	c.GetBatches()
	return c
}

// versionsOf returns the sorted union of version keys found on elements.
func versionsOf(data []*Element) []string {
	seen := map[string]bool{}
	var versions []string
	for _, e := range data {
		for v := range e.Data {
			if !seen[v] {
				seen[v] = true
				versions = append(versions, v)
			}
		}
	}
	sort.Strings(versions)
	return versions
}

// Env returns the collaborators of the collection.
func (c *Collection) Env() Env {
	return c.env
}

// Log returns the collection logger.
func (c *Collection) Log() *slog.Logger {
	return c.env.Log
}

// Len returns the number of elements.
func (c *Collection) Len() int {
	return len(c.Data)
}

// Versions returns the version keys in the order they were loaded or added.
func (c *Collection) Versions() []string {
	return slices.Clone(c.versions)
}

// AddVersion registers a version key produced by processing.
func (c *Collection) AddVersion(version string) {
	if !slices.Contains(c.versions, version) {
		c.versions = append(c.versions, version)
	}
}

// HasVersion reports whether element 0 carries version.
func (c *Collection) HasVersion(version string) bool {
	if len(c.Data) == 0 {
		return false
	}
	return c.Data[0].Artifact(version) != nil
}

// Element returns the first element with the given id, or nil.
func (c *Collection) Element(id string) *Element {
	for _, e := range c.Data {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Batch returns the batch with the given id, or nil.
func (c *Collection) Batch(id string) *Batch {
	for _, b := range c.Batches {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// GetBatches rebuilds the batch index. A collection is batched when its first
// element was assigned a batch, possibly the empty id; elements are then grouped in encounter
// order and each batch is given one palette color. It must be called after any
// structural change to Data.
//
// Only element 0 is inspected. When later elements lack an identifier they
// are grouped under the empty batch id.
func (c *Collection) GetBatches() {
	c.Batches = nil
	if len(c.Data) == 0 || !c.Data[0].HasBatch() {
		return
	}

	index := map[string]*Batch{}
	for _, e := range c.Data {
		b, ok := index[e.BatchID]
		if !ok {
			b = &Batch{ID: e.BatchID}
			index[e.BatchID] = b
			c.Batches = append(c.Batches, b)
		}
		b.Elements = append(b.Elements, e)
	}

	colors := c.env.Palette.DistinctColors(len(c.Batches))
	for i, b := range c.Batches {
		if i < len(colors) {
			b.Color = colors[i]
		}
		for _, e := range b.Elements {
			e.Color = b.Color
		}
	}
}

// RemoveSample removes the sample(s) named by a string id or a []string of
// ids. Any other argument is logged and ignored. Batches are always
// recomputed.
func (c *Collection) RemoveSample(sample any) {
	switch s := sample.(type) {
	case string:
		c.RemoveSamples(s)
	case []string:
		c.RemoveSamples(s...)
	case []any:
		ids := make([]string, 0, len(s))
		for _, v := range s {
			id, ok := v.(string)
			if !ok {
				c.env.Log.Warn("removeSample: ids must be strings, nothing has been removed", "value", v)
				c.GetBatches()
				return
			}
			ids = append(ids, id)
		}
		c.RemoveSamples(ids...)
	default:
		c.env.Log.Warn("removeSample: parameter has to be a string or a list of strings, nothing has been removed",
			"type", typeName(sample))
		c.GetBatches()
	}
}

// RemoveSamples removes, for each id, the first element carrying it, then
// recomputes batches.
func (c *Collection) RemoveSamples(ids ...string) {
	for _, id := range ids {
		for j, e := range c.Data {
			if e.ID == id {
				c.Data = slices.Delete(c.Data, j, j+1)
				break
			}
		}
	}
	c.GetBatches()
}

// DataType classifies the files of version by the extension of element 0's
// file.
func (c *Collection) DataType(version string) DataType {
	if len(c.Data) == 0 {
		return TypeUnknown
	}
	a := c.Data[0].Artifact(version)
	if a == nil {
		return TypeUnknown
	}
	return DataTypeOf(a.Filename)
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
