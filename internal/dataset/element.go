// Package dataset holds the versioned dataset model: elements aligned across
// version directories, the collection that owns them, and the loader that
// builds a collection from a source root.
package dataset

import (
	"labset/pkg/typedref"
)

// DataType classifies the files stored under a version.
type DataType string

const (
	TypeImage    DataType = "image"
	TypeSpectrum DataType = "spectrum"
	TypeArray    DataType = "array"
	TypeUnknown  DataType = "unknown"
)

// DataTypeOf classifies path by its extension.
func DataTypeOf(path string) DataType {
	switch typedref.Extension(path) {
	case "jpg", "jpeg", "png", "tif", "tiff", "gif":
		return TypeImage
	case "jdx", "dx":
		return TypeSpectrum
	case "array":
		return TypeArray
	default:
		return TypeUnknown
	}
}

// Artifact is the file of one element under one version.
type Artifact struct {
	Filename  string       `json:"filename"`
	ViewFile  typedref.Ref `json:"viewFile"`
	Histogram []float64    `json:"histogram,omitempty"`
}

// Element is one logical sample across all loaded versions.
type Element struct {
	ID       string               `json:"id"`
	Name     string               `json:"name,omitempty"`
	Data     map[string]*Artifact `json:"data"`
	Metadata map[string]string    `json:"metadata"`
	BatchID  string               `json:"batchID,omitempty"`
	// Batched records that a batch was assigned, which may be the empty id.
	Batched bool   `json:"batched,omitempty"`
	Color   string `json:"color"`
}

// HasBatch reports whether the element was given a batch, even an empty one.
func (e *Element) HasBatch() bool {
	return e.Batched || e.BatchID != ""
}

// SetBatch assigns the batch id.
func (e *Element) SetBatch(id string) {
	e.BatchID = id
	e.Batched = true
}

// Artifact returns the element's artifact for version, or nil.
func (e *Element) Artifact(version string) *Artifact {
	if e == nil || e.Data == nil {
		return nil
	}
	return e.Data[version]
}

// SetArtifact records filename under version, resolving its view reference.
func (e *Element) SetArtifact(version, filename string, refs typedref.Resolver, histogram []float64) *Artifact {
	if e.Data == nil {
		e.Data = make(map[string]*Artifact)
	}
	a := &Artifact{
		Filename:  filename,
		ViewFile:  refs.Resolve(filename),
		Histogram: histogram,
	}
	e.Data[version] = a
	return a
}
