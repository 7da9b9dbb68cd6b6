package data

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ModelEntry places Instances entities that all draw mesh MeshIndex of Path.
type ModelEntry struct {
	Path      string `yaml:"path"`
	MeshIndex int    `yaml:"mesh_index"`
	Instances int    `yaml:"instances"`
	Label     string `yaml:"label"`
}

// Manifest lists what a scene streams in at startup. Paths are relative to
// the manifest's directory.
type Manifest struct {
	Models  []ModelEntry `yaml:"models"`
	Scripts []string     `yaml:"scripts"`

	dir string
}

// LoadManifest reads a scene manifest.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	for i := range m.Models {
		e := &m.Models[i]
		if e.Path == "" {
			return nil, fmt.Errorf("manifest model %d: path is required", i)
		}
		if e.MeshIndex < 0 {
			return nil, fmt.Errorf("manifest model %s: negative mesh_index", e.Path)
		}
		if e.Instances <= 0 {
			e.Instances = 1
		}
		if e.Label == "" {
			e.Label = filepath.Base(e.Path)
		}
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

// Resolve joins a manifest-relative path onto the manifest's directory.
func (m *Manifest) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

// InstanceCount returns the total number of entities the manifest spawns.
func (m *Manifest) InstanceCount() int {
	n := 0
	for _, e := range m.Models {
		n += e.Instances
	}
	return n
}
