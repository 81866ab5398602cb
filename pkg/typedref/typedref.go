// Package typedref maps file paths to the typed references a viewer uses to
// decide how a file is rendered.
package typedref

import (
	"path/filepath"
	"strings"
)

// Ref describes how a viewer should render a file. Raster images carry an
// inline Value, every other type carries a URL.
type Ref struct {
	Type  string `json:"type" msgpack:"type"`
	URL   string `json:"url,omitempty" msgpack:"url,omitempty"`
	Value string `json:"value,omitempty" msgpack:"value,omitempty"`
}

// Resolver builds Refs. ReadURL turns a path into the string handed to the
// viewer; nil leaves the path unchanged.
type Resolver struct {
	ReadURL func(path string) string
}

// Default is the resolver used when a collaborator has none configured.
var Default = Resolver{}

// Resolve returns the typed reference for path, decided by its extension.
func (r Resolver) Resolve(path string) Ref {
	ext := Extension(path)
	url := path
	if r.ReadURL != nil {
		url = r.ReadURL(path)
	}

	switch ext {
	case "gif", "png", "jpeg", "jpg":
		return Ref{Type: ext, Value: url}
	case "dx", "jdx":
		return Ref{Type: "jcamp", URL: url}
	}
	return Ref{Type: ext, URL: url}
}

// Resolve resolves path with the Default resolver.
func Resolve(path string) Ref {
	return Default.Resolve(path)
}

// Extension returns the lowercased extension of path without the dot.
func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
