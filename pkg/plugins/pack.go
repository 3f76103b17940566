package plugins

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// PackOptions configures Pack.
type PackOptions struct {
	Owner   string
	Repo    string
	Version string

	// Output is the directory archives and manifest.yml are written to.
	Output string

	// Definitions are paths to plugin.yml files. The same plugin may appear
	// several times, once per platform build.
	Definitions []string
}

// Pack archives each plugin with its executable and writes the release
// manifest describing them.
func Pack(opts PackOptions) (*Manifest, error) {
	if err := os.MkdirAll(opts.Output, 0o755); err != nil {
		return nil, err
	}

	m := &Manifest{Owner: opts.Owner, Repo: opts.Repo, Version: opts.Version}
	index := make(map[string]int)

	for _, path := range opts.Definitions {
		def, err := LoadDefinition(path, nil)
		if err != nil {
			return nil, err
		}
		if filepath.IsAbs(def.Executable) {
			return nil, fmt.Errorf("%s: executable must be relative to the plugin directory", path)
		}
		dir := filepath.Dir(path)
		p := &Plugin{Path: dir, Definition: def}

		file := AssetName(def.Name, def.When)
		if err := packOne(filepath.Join(opts.Output, file), p, path); err != nil {
			return nil, fmt.Errorf("%s: %w", def.Name, err)
		}

		i, ok := index[def.Name]
		if !ok {
			i = len(m.Plugins)
			index[def.Name] = i
			m.Plugins = append(m.Plugins, ManifestPlugin{Name: def.Name})
		}
		m.Plugins[i].Assets = append(m.Plugins[i].Assets, ManifestAsset{File: file, When: def.When})
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(opts.Output, ManifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return m, nil
}

func packOne(out string, p *Plugin, definition string) error {
	f, err := os.Create(out)
	if err != nil {
		return err
	}

	err = WriteArchive(f, []ArchiveFile{
		{Path: p.ExecutablePath(), Name: p.Definition.Executable},
		{Path: definition, Name: DefinitionFile},
	})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return err
}
