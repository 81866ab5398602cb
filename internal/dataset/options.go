package dataset

import (
	"path/filepath"
	"regexp"
	"strings"

	"labset/internal/storage"
)

// Process-wide loading limits. Override before loading to change them.
var (
	// SizeLimit caps the number of files loaded for the reference version.
	// Larger directories are truncated with a warning.
	SizeLimit = 300

	// DefaultLimit is the per-version file cap applied by DefaultLoadOptions.
	DefaultLimit = 20
)

// DefaultVersion is loaded when no version selector is given.
const DefaultVersion = "original"

// VersionSelector picks the version directories to load under a source root.
type VersionSelector interface {
	resolve(fs storage.FS, root string) ([]string, error)
}

type namedVersions struct {
	names []string
}

type matchingVersions struct {
	re *regexp.Regexp
}

// Version selects a single version.
func Version(name string) VersionSelector {
	return namedVersions{names: []string{name}}
}

// Versions selects the given versions in order. With no names, every
// subdirectory whose name does not start with "_" is selected.
func Versions(names ...string) VersionSelector {
	return namedVersions{names: names}
}

// VersionsMatching selects every subdirectory whose name matches re.
func VersionsMatching(re *regexp.Regexp) VersionSelector {
	return matchingVersions{re: re}
}

func (s namedVersions) resolve(fs storage.FS, root string) ([]string, error) {
	for _, n := range s.names {
		if n == "" {
			return nil, Configurationf("version names must not be empty")
		}
	}
	if len(s.names) > 0 {
		return s.names, nil
	}

	dirs, err := fs.ListDirs(root, nil)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, d := range dirs {
		name := filepath.Base(d)
		if !strings.HasPrefix(name, "_") {
			versions = append(versions, name)
		}
	}
	return versions, nil
}

func (s matchingVersions) resolve(fs storage.FS, root string) ([]string, error) {
	if s.re == nil {
		return nil, Configurationf("version pattern must not be nil")
	}
	dirs, err := fs.ListDirs(root, s.re)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		return nil, Loadf("no version found with the pattern %s", s.re)
	}
	versions := make([]string, len(dirs))
	for i, d := range dirs {
		versions[i] = filepath.Base(d)
	}
	return versions, nil
}

// MetadataOptions describes a delimited metadata file joined to elements.
type MetadataOptions struct {
	Path      string
	Delimiter rune // 0 means ','

	// UniqueColumn holds the value matched against element names.
	UniqueColumn string

	// NameFilter maps the unique column value to an element name. Nil is the
	// identity.
	NameFilter func(string) string
}

// BatchSource says where batch identifiers come from.
type BatchSource string

const (
	BatchFromFilename BatchSource = "filename"
	BatchFromMetadata BatchSource = "metadata"
)

// BatchDescription derives an element's batch identifier.
type BatchDescription struct {
	Source   BatchSource
	Modifier func(string) string
	// Column is the metadata field read when Source is BatchFromMetadata.
	Column string
}

// FilenameFilter maps an element id to its comparison name. ok is false when
// the id carries no name.
type FilenameFilter func(id string) (name string, ok bool)

// LoadOptions configures Load. Start from DefaultLoadOptions.
type LoadOptions struct {
	// Version selects the directories to load. Nil loads DefaultVersion.
	Version VersionSelector

	Metadata *MetadataOptions

	// FilenameFilter defaults to DefaultFilenameFilter.
	FilenameFilter FilenameFilter

	// SubSet keeps only files whose name matches.
	SubSet storage.Matcher

	// Limit caps the number of files per version; 0 loads everything.
	Limit int

	// Batch defaults to DefaultBatchDescription when Source is empty.
	Batch BatchDescription
}

// DefaultLoadOptions returns the options used when nothing is specified.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{
		Version:        Version(DefaultVersion),
		FilenameFilter: DefaultFilenameFilter,
		Limit:          DefaultLimit,
		Batch:          DefaultBatchDescription(),
	}
}

var sampleNameRe = regexp.MustCompile(`^.*_[0-9]+`)

// DefaultFilenameFilter keeps the longest prefix of id ending in "_<digits>".
func DefaultFilenameFilter(id string) (string, bool) {
	m := sampleNameRe.FindString(id)
	return m, m != ""
}

// BeforeUnderscore returns everything before the first "_" of s.
func BeforeUnderscore(s string) string {
	if i := strings.IndexByte(s, '_'); i >= 0 {
		return s[:i]
	}
	return s
}

// DefaultBatchDescription derives the batch from the filename prefix before
// the first "_".
func DefaultBatchDescription() BatchDescription {
	return BatchDescription{Source: BatchFromFilename, Modifier: BeforeUnderscore}
}

// resolved is LoadOptions after defaulting and validation.
type resolved struct {
	versions []string
	metadata map[string]map[string]string
	filter   FilenameFilter
	subSet   storage.Matcher
	limit    int
	batch    BatchDescription
}

// resolve applies defaults and validates every option before any data is
// read. The steps are independent of each other.
func (o LoadOptions) resolve(env Env, root string) (*resolved, error) {
	r := &resolved{subSet: o.SubSet}

	env.Log.Info("treatment of the version option")
	sel := o.Version
	if sel == nil {
		sel = Version(DefaultVersion)
	}
	versions, err := sel.resolve(env.FS, root)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, Loadf("no version directory found in %s", root)
	}
	r.versions = versions

	if o.Metadata != nil {
		env.Log.Info("treatment of the metadata option", "path", o.Metadata.Path)
		meta, err := loadMetadata(env.FS, *o.Metadata)
		if err != nil {
			return nil, err
		}
		r.metadata = meta
	}

	r.filter = o.FilenameFilter
	if r.filter == nil {
		r.filter = DefaultFilenameFilter
	}

	if o.Limit < 0 {
		return nil, Configurationf("limit must be a non-negative integer, got %d", o.Limit)
	}
	r.limit = o.Limit

	b := o.Batch
	if b.Source == "" && b.Modifier == nil && b.Column == "" {
		b = DefaultBatchDescription()
	}
	switch b.Source {
	case BatchFromFilename, BatchFromMetadata:
	default:
		return nil, Configurationf("batch description source must be %q or %q, got %q",
			BatchFromFilename, BatchFromMetadata, b.Source)
	}
	if b.Modifier == nil {
		return nil, Configurationf("batch description must have a modifier function")
	}
	if b.Source == BatchFromMetadata && b.Column == "" {
		return nil, Configurationf("missing column property in the batch description")
	}
	r.batch = b

	return r, nil
}

func loadMetadata(fs storage.FS, o MetadataOptions) (map[string]map[string]string, error) {
	if o.Path == "" {
		return nil, Configurationf("metadata path must not be empty")
	}
	column := o.UniqueColumn
	if column == "" {
		column = "name"
	}
	nameFilter := o.NameFilter
	if nameFilter == nil {
		nameFilter = func(s string) string { return s }
	}

	records, err := fs.ParseDelimited(o.Path, o.Delimiter, func(rec storage.Record) {
		if v := rec[column]; v != "" && rec["_id"] == "" {
			rec["_id"] = nameFilter(v)
		}
	})
	if err != nil {
		return nil, Loadf("reading metadata %s: %v", o.Path, err)
	}

	meta := make(map[string]map[string]string, len(records))
	for _, rec := range records {
		meta[rec["_id"]] = rec
	}
	return meta, nil
}
