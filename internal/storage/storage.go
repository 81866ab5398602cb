// Package storage is the file collaborator: directory listing, existence
// checks, delimited-file parsing, JSON persistence and removal.
package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Kind reports what a path points to.
type Kind int

const (
	KindAbsent Kind = iota
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "directory"
	default:
		return "absent"
	}
}

// Matcher selects entries by base name. *regexp.Regexp satisfies it.
type Matcher interface {
	MatchString(s string) bool
}

// Substring matches names containing the string.
type Substring string

// MatchString implements Matcher.
func (s Substring) MatchString(name string) bool {
	return strings.Contains(name, string(s))
}

// Record is one row of a delimited file, keyed by header column.
type Record map[string]string

// FS is the file collaborator used by the dataset code.
type FS interface {
	// ListFiles returns the regular files directly under dir, sorted, whose
	// base name satisfies filter (nil keeps everything).
	ListFiles(dir string, filter Matcher) ([]string, error)
	// ListDirs returns the subdirectories directly under dir, sorted.
	ListDirs(dir string, filter Matcher) ([]string, error)
	Exists(path string) Kind
	// ParseDelimited reads a delimited file with a header row. modifier, when
	// set, is called on every record before it is returned.
	ParseDelimited(path string, delimiter rune, modifier func(Record)) ([]Record, error)
	LoadJSON(path string, v any) error
	SaveJSON(path string, v any) error
	MkdirAll(dir string) error
	RemoveAll(path string) error
}

// OS is the FS backed by the local file system.
type OS struct{}

var _ FS = OS{}

// ListFiles implements FS.
func (OS) ListFiles(dir string, filter Matcher) ([]string, error) {
	return list(dir, filter, false)
}

// ListDirs implements FS.
func (OS) ListDirs(dir string, filter Matcher) ([]string, error) {
	return list(dir, filter, true)
}

func list(dir string, filter Matcher, dirs bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() != dirs {
			continue
		}
		if filter != nil && !filter.MatchString(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Exists implements FS.
func (OS) Exists(path string) Kind {
	info, err := os.Stat(path)
	if err != nil {
		return KindAbsent
	}
	if info.IsDir() {
		return KindDir
	}
	return KindFile
}

// ParseDelimited implements FS.
func (OS) ParseDelimited(path string, delimiter rune, modifier func(Record)) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	return ParseDelimited(f, delimiter, modifier)
}

// ParseDelimited parses delimited rows from r. Delimiter 0 means ','.
func ParseDelimited(r io.Reader, delimiter rune, modifier func(Record)) ([]Record, error) {
	cr := csv.NewReader(r)
	if delimiter != 0 {
		cr.Comma = delimiter
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row %d: %w", len(records)+1, err)
		}
		rec := make(Record, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = strings.TrimSpace(row[i])
			}
		}
		if modifier != nil {
			modifier(rec)
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadJSON implements FS.
func (OS) LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// SaveJSON implements FS. Parent directories are created as needed.
func (OS) SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// MkdirAll implements FS.
func (OS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// RemoveAll implements FS.
func (OS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}
