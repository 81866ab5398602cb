package dataset

import (
	"fmt"
	"path/filepath"
)

// snapshot is the persisted form of a collection. Batches are derived and
// never stored.
type snapshot struct {
	Data     []*Element `json:"data"`
	Source   string     `json:"source"`
	Versions []string   `json:"versions,omitempty"`
}

// SnapshotPath returns where a snapshot named name is stored under source.
func SnapshotPath(source, name string) string {
	return filepath.Join(source, "_json", name+".json")
}

// Save persists the collection to <source>/_json/<name>.json.
func (c *Collection) Save(name string) error {
	if name == "" {
		return Validationf("snapshot name must not be empty")
	}
	path := SnapshotPath(c.Source, name)
	snap := snapshot{Data: c.Data, Source: c.Source, Versions: c.versions}
	if err := c.env.FS.SaveJSON(path, snap); err != nil {
		return fmt.Errorf("saving dataset %s: %w", path, err)
	}
	c.env.Log.Info("dataset saved", "path", path, "elements", len(c.Data))
	return nil
}

// LoadSnapshot restores a collection saved with Save. Batches are recomputed.
func LoadSnapshot(env Env, source, name string) (*Collection, error) {
	env = env.withDefaults()
	env.Log.Info("loading old dataset", "source", source, "name", name)

	path := SnapshotPath(source, name)
	var snap snapshot
	if err := env.FS.LoadJSON(path, &snap); err != nil {
		return nil, Loadf("reading snapshot %s: %v", path, err)
	}
	for _, e := range snap.Data {
		if e.Metadata == nil {
			e.Metadata = map[string]string{}
		}
	}

	c := New(snap.Data, snap.Source, env)
	if len(snap.Versions) > 0 {
		c.versions = snap.Versions
	}
	env.Log.Info("dataset loaded", "elements", len(c.Data))
	return c, nil
}
