// Package export delivers named analysis artifacts to their consumer: a
// directory of JSON or msgpack files for the CLI, or memory for tests and
// embedding callers.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"labset/internal/dataset"
)

// Format is the encoding of exported files.
type Format string

const (
	JSON    Format = "json"
	MsgPack Format = "msgpack"
)

// ParseFormat parses a format name. The empty string is JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", JSON:
		return JSON, nil
	case MsgPack:
		return MsgPack, nil
	}
	return "", dataset.Configurationf("unknown export format %q", s)
}

// Sink receives named artifacts.
type Sink = dataset.Exporter

// ManifestName is the file listing what a DirSink wrote.
const ManifestName = "manifest.json"

// Entry describes one exported artifact.
type Entry struct {
	Name     string    `json:"name"`
	File     string    `json:"file"`
	Format   Format    `json:"format"`
	Exported time.Time `json:"exported"`
}

// Manifest is the content of manifest.json.
type Manifest struct {
	RunID     string    `json:"runID"`
	Created   time.Time `json:"created"`
	Artifacts []Entry   `json:"artifacts"`
}

// DirSink writes every artifact to <dir>/<name>.<format> and keeps
// manifest.json up to date. Exporting a name twice replaces the file.
type DirSink struct {
	dir    string
	format Format
	log    *slog.Logger

	mu       sync.Mutex
	manifest Manifest
}

// NewDirSink creates dir if needed and starts a new run.
func NewDirSink(dir string, format Format, log *slog.Logger) (*DirSink, error) {
	if dir == "" {
		return nil, dataset.Configurationf("export directory must not be empty")
	}
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating export directory: %w", err)
	}
	return &DirSink{
		dir:    dir,
		format: format,
		log:    log,
		manifest: Manifest{
			RunID:   uuid.NewString(),
			Created: time.Now().UTC(),
		},
	}, nil
}

// RunID identifies this sink's run in the manifest.
func (s *DirSink) RunID() string {
	return s.manifest.RunID
}

// Dir returns the export directory.
func (s *DirSink) Dir() string {
	return s.dir
}

// Export encodes value and writes it under name.
func (s *DirSink) Export(name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}
	data, err := Encode(s.format, value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}

	file := name + "." + string(s.format)
	if err := os.WriteFile(filepath.Join(s.dir, file), data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", file, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry := Entry{Name: name, File: file, Format: s.format, Exported: time.Now().UTC()}
	replaced := false
	for i := range s.manifest.Artifacts {
		if s.manifest.Artifacts[i].Name == name {
			s.manifest.Artifacts[i] = entry
			replaced = true
		}
	}
	if !replaced {
		s.manifest.Artifacts = append(s.manifest.Artifacts, entry)
	}
	if err := s.writeManifest(); err != nil {
		return err
	}
	s.log.Info("artifact exported", "name", name, "file", file, "bytes", len(data))
	return nil
}

// Manifest returns a copy of the current manifest.
func (s *DirSink) Manifest() Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.manifest
	m.Artifacts = append([]Entry(nil), s.manifest.Artifacts...)
	return m
}

func (s *DirSink) writeManifest() error {
	data, err := json.MarshalIndent(s.manifest, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, ManifestName), data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func checkName(name string) error {
	if name == "" {
		return dataset.Validationf("export name must not be empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return dataset.Validationf("export name %q must not contain a path", name)
	}
	if name+".json" == ManifestName {
		return dataset.Validationf("export name %q is reserved", name)
	}
	return nil
}

// Encode serialises value in format. msgpack output follows the json struct
// tags so both encodings carry the same keys.
func Encode(format Format, value any) ([]byte, error) {
	switch format {
	case "", JSON:
		return json.MarshalIndent(value, "", "  ")
	case MsgPack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		enc.SetOmitEmpty(true)
		if err := enc.Encode(value); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, dataset.Configurationf("unknown export format %q", format)
}

// Decode is the inverse of Encode.
func Decode(format Format, data []byte, v any) error {
	switch format {
	case "", JSON:
		return json.Unmarshal(data, v)
	case MsgPack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		return dec.Decode(v)
	}
	return dataset.Configurationf("unknown export format %q", format)
}

// MemorySink keeps exported values in memory.
type MemorySink struct {
	mu     sync.Mutex
	values map[string]any
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{values: map[string]any{}}
}

func (s *MemorySink) Export(name string, value any) error {
	if name == "" {
		return dataset.Validationf("export name must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
	return nil
}

// Get returns the last value exported under name.
func (s *MemorySink) Get(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	return v, ok
}

// Names returns the exported names, sorted.
func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
