package dataset

import (
	"path/filepath"

	"labset/pkg/colorutil"
	"labset/pkg/typedref"
)

// Load scans root, resolves the requested versions, checks that they hold the
// same samples and builds a Collection with one element per file of the first
// (reference) version.
//
// Malformed options fail with ErrConfiguration; missing, empty or misaligned
// version directories fail with ErrLoad.
func Load(env Env, root string, opts LoadOptions) (*Collection, error) {
	env = env.withDefaults()
	log := env.Log
	log.Info("starting dataset load", "source", root)

	r, err := opts.resolve(env, root)
	if err != nil {
		return nil, err
	}

	log.Info("loading the versions", "versions", r.versions)
	folders := make(map[string][]string, len(r.versions))
	for i, v := range r.versions {
		dir := filepath.Join(root, v)
		files, err := env.FS.ListFiles(dir, r.subSet)
		if err != nil {
			return nil, Loadf("listing %s: %v", dir, err)
		}
		if len(files) == 0 {
			return nil, Loadf("directory %s is empty or does not exist", dir)
		}
		if r.limit > 0 && len(files) > r.limit {
			files = files[:r.limit]
		}
		if i == 0 && len(files) > SizeLimit {
			log.Warn("dataset reduced to the size limit",
				"limit", SizeLimit, "found", len(files), "version", v)
			files = files[:SizeLimit]
		}
		folders[v] = files
	}

	log.Info("checking that each loaded version contains the same data")
	reference := r.versions[0]
	refFiles := folders[reference]
	for _, v := range r.versions[1:] {
		files := folders[v]
		if len(refFiles) > len(files) {
			return nil, Loadf("selected versions (%s & %s) do not contain the same amount of data", reference, v)
		}
		for i := range refFiles {
			if typedref.Stem(refFiles[i]) != typedref.Stem(files[i]) {
				return nil, Loadf("selected versions (%s & %s) do not contain the same data: %s vs %s",
					reference, v, filepath.Base(refFiles[i]), filepath.Base(files[i]))
			}
		}
	}

	log.Info("adding each element to the collection", "count", len(refFiles))
	data := make([]*Element, len(refFiles))
	for i, file := range refFiles {
		e := &Element{
			ID:    typedref.Stem(file),
			Data:  make(map[string]*Artifact, len(r.versions)),
			Color: colorutil.DefaultElementColor,
		}
		if name, ok := r.filter(e.ID); ok {
			e.Name = name
		}
		for _, v := range r.versions {
			e.SetArtifact(v, folders[v][i], env.Refs, nil)
		}

		e.Metadata = map[string]string{}
		if md, ok := r.metadata[e.Name]; ok && e.Name != "" {
			e.Metadata = md
		}

		switch r.batch.Source {
		case BatchFromFilename:
			e.SetBatch(r.batch.Modifier(e.ID))
		case BatchFromMetadata:
			if value := e.Metadata[r.batch.Column]; value != "" {
				e.SetBatch(r.batch.Modifier(value))
			}
		}
		data[i] = e
	}

	c := New(data, root, env)
	c.versions = append([]string(nil), r.versions...)
	log.Info("end of dataset load", "elements", len(data), "batches", len(c.Batches))
	return c, nil
}
