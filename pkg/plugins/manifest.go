package plugins

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/state"
)

// ManifestFile is the release asset listing the plugins of a release.
const ManifestFile = "manifest.yml"

// Manifest describes the plugins published in one release.
type Manifest struct {
	Owner   string           `yaml:"owner"`
	Repo    string           `yaml:"repo"`
	Version string           `yaml:"version"`
	Plugins []ManifestPlugin `yaml:"plugins"`
}

// ManifestPlugin lists the assets of one plugin.
type ManifestPlugin struct {
	Name   string          `yaml:"name"`
	Assets []ManifestAsset `yaml:"assets"`
}

// ManifestAsset is one downloadable archive and the conditions under which
// it applies.
type ManifestAsset struct {
	File string   `yaml:"file"`
	When []string `yaml:"when,omitempty"`
}

// Plugin returns the named plugin entry.
func (m *Manifest) Plugin(name string) (ManifestPlugin, bool) {
	for _, p := range m.Plugins {
		if p.Name == name {
			return p, true
		}
	}
	return ManifestPlugin{}, false
}

// ParseManifest decodes a manifest and validates it against the built-in
// manifest schema.
func ParseManifest(schemas *config.SchemaRegistry, data []byte) (*Manifest, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := schemas.Validate(config.ManifestSchema, state.Normalize(raw)); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	var doc struct {
		Owner   string `yaml:"owner"`
		Repo    string `yaml:"repo"`
		Version string `yaml:"version"`
		Plugins []struct {
			Name   string `yaml:"name"`
			Assets []struct {
				File string    `yaml:"file"`
				When yaml.Node `yaml:"when"`
			} `yaml:"assets"`
		} `yaml:"plugins"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	m := &Manifest{Owner: doc.Owner, Repo: doc.Repo, Version: doc.Version}
	for _, p := range doc.Plugins {
		mp := ManifestPlugin{Name: p.Name}
		for _, a := range p.Assets {
			asset := ManifestAsset{File: a.File}
			if a.When.Kind != 0 {
				when, err := state.OneOrManyStrings(&a.When)
				if err != nil {
					return nil, fmt.Errorf("invalid manifest: %s: when: %w", a.File, err)
				}
				asset.When = when
			}
			mp.Assets = append(mp.Assets, asset)
		}
		m.Plugins = append(m.Plugins, mp)
	}
	return m, nil
}
