// Package process implements the processing dispatcher: operations that read
// one version of every element, write a new version directory next to it and
// record the new files on the elements.
//
// Every operation validates its request (destination name, source version,
// data type, method parameters), then plans its target directories and
// refuses existing ones unless overwriting, and only then touches the file
// system.
package process

import (
	"path/filepath"
	"regexp"
	"strings"

	"labset/internal/dataset"
	"labset/internal/storage"
	"labset/pkg/typedref"
)

var destinationPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// originalDir is the version directory whose derivatives drop the prefix.
const originalDir = "original"

// validate runs the checks shared by every operation, in order.
func validate(c *dataset.Collection, version, destination string, want dataset.DataType) error {
	if !destinationPattern.MatchString(destination) {
		return dataset.Validationf("the destination name %q contains forbidden characters; allowed characters are a-z, A-Z, 0-9 and -", destination)
	}
	if !c.HasVersion(version) {
		return dataset.Validationf("the version %q is not loaded or does not exist", version)
	}
	if got := c.DataType(version); got != want {
		return dataset.Validationf("this operation can only be used on %s data, version %q holds %s", want, version, got)
	}
	return nil
}

// target is one version directory written by an operation.
type target struct {
	version string
	dir     string
	exists  bool
}

// plan holds the resolved targets of an operation. It is built before any
// file system mutation.
type plan struct {
	c         *dataset.Collection
	source    string
	targets   []target
	overwrite bool
}

// TargetName returns the version key derived from a source directory name.
func TargetName(sourceDir, destination string) string {
	if sourceDir == originalDir {
		return destination
	}
	return sourceDir + "_" + destination
}

// newPlan resolves the target directories of an operation. suffixes names the
// per-channel variants; none means a single target. An existing target
// without overwrite fails before anything is removed.
func newPlan(c *dataset.Collection, version, destination string, overwrite bool, suffixes ...string) (*plan, error) {
	sourceDir := filepath.Dir(c.Data[0].Artifact(version).Filename)
	name := TargetName(filepath.Base(sourceDir), destination)
	parent := filepath.Dir(sourceDir)

	if len(suffixes) == 0 {
		suffixes = []string{""}
	}

	p := &plan{c: c, source: version, overwrite: overwrite}
	fs := c.Env().FS
	for _, suffix := range suffixes {
		t := target{
			version: name + suffix,
			dir:     filepath.Join(parent, name+suffix),
		}
		// only an existing directory is a conflict; anything else in the way
		// fails when the directory is created
		t.exists = fs.Exists(t.dir) == storage.KindDir
		if t.exists && !overwrite {
			return nil, dataset.Validationf("the directory %s already exists; choose another name or set the overwrite option", t.version)
		}
		p.targets = append(p.targets, t)
	}
	return p, nil
}

// prepare clears overwritten targets, creates the directories and registers
// the new versions on the collection.
func (p *plan) prepare() error {
	fs := p.c.Env().FS
	log := p.c.Log()
	for _, t := range p.targets {
		if t.exists {
			if err := fs.RemoveAll(t.dir); err != nil {
				return err
			}
			log.Warn("directory content overwritten, derived versions may not be up to date",
				"directory", t.version)
		}
		if err := fs.MkdirAll(t.dir); err != nil {
			return err
		}
		p.c.AddVersion(t.version)
	}
	return nil
}

// each calls fn with every element and the path of its source file. It stops
// at the first error; elements already processed keep their new entries.
func (p *plan) each(fn func(e *dataset.Element, src string) error) error {
	for _, e := range p.c.Data {
		a := e.Artifact(p.source)
		if a == nil {
			return dataset.Validationf("element %s has no version %q", e.ID, p.source)
		}
		if err := fn(e, a.Filename); err != nil {
			return err
		}
	}
	return nil
}

// path returns where src is written under target k, with its extension
// replaced by ext when ext is not empty.
func (p *plan) path(k int, src, ext string) string {
	name := filepath.Base(src)
	if ext != "" {
		name = typedref.Stem(name) + ext
	}
	return filepath.Join(p.targets[k].dir, name)
}

// record stores path under target k on e.
func (p *plan) record(e *dataset.Element, k int, path string, histogram []float64) {
	e.SetArtifact(p.targets[k].version, path, p.c.Env().Refs, histogram)
}

// normalizeName folds an enum spelling: case, underscores and spaces.
func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "-", " ", "-").Replace(s)
}
