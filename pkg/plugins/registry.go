package plugins

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/eval"
	"github.com/openfroyo/nk/pkg/state"
)

// LoadOptions configures Load.
type LoadOptions struct {
	Sources []config.PluginSource

	// Acquirer installs remote sources. When nil, only what is already on
	// disk is loaded.
	Acquirer *Acquirer

	// Dir is the plugins directory remote sources are installed in.
	Dir string

	Evaluator *eval.Evaluator
	Logger    zerolog.Logger
}

// Registry holds the plugins available on this machine, in configuration
// order.
type Registry struct {
	plugins []*Plugin
	byName  map[string]*Plugin
}

// NewRegistry builds a registry from loaded plugins.
func NewRegistry(plugins []*Plugin) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Plugin, len(plugins))}
	for _, p := range plugins {
		if prev, dup := r.byName[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate plugin name %q: %s and %s", p.Name(), prev.Path, p.Path)
		}
		r.byName[p.Name()] = p
		r.plugins = append(r.plugins, p)
	}
	return r, nil
}

// Load acquires remote plugins, then reads every plugin directory and keeps
// the plugins whose conditions hold. Sources without a directory on disk
// are dropped.
func Load(ctx context.Context, opts LoadOptions) (*Registry, error) {
	if opts.Acquirer != nil {
		if err := opts.Acquirer.Acquire(ctx, opts.Sources); err != nil {
			return nil, fmt.Errorf("failed to acquire plugins: %w", err)
		}
	}

	var filter PartialFilter
	if opts.Evaluator != nil {
		filter = opts.Evaluator.All
	}

	var loaded []*Plugin
	for i, src := range opts.Sources {
		dir := src.Path
		if src.Kind == config.SourceGitHub {
			dir = filepath.Join(opts.Dir, src.Plugin)
		}

		if _, err := os.Stat(dir); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				opts.Logger.Debug().Str("source", src.Raw).Msg("Plugin is not installed, skipping")
				continue
			}
			return nil, fmt.Errorf("%s: %w", src.Raw, err)
		}

		def, err := LoadDefinition(filepath.Join(dir, DefinitionFile), filter)
		if err != nil {
			return nil, err
		}

		if filter != nil && len(def.When) > 0 {
			ok, err := filter(def.When)
			if err != nil {
				return nil, fmt.Errorf("plugin %s: when: %w", def.Name, err)
			}
			if !ok {
				opts.Logger.Debug().Str("plugin", def.Name).Msg("Plugin does not apply to this machine")
				continue
			}
		}

		loaded = append(loaded, &Plugin{
			Path:       dir,
			Definition: def,
			Index:      i,
			Source:     src,
			Version:    InstalledVersion(dir),
		})
	}

	return NewRegistry(loaded)
}

// Plugins returns the plugins in configuration order.
func (r *Registry) Plugins() []*Plugin { return r.plugins }

// Get returns the named plugin.
func (r *Registry) Get(name string) (*Plugin, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Len returns the number of plugins.
func (r *Registry) Len() int { return len(r.plugins) }

// Dependencies collects the dependency declarations of every plugin, in
// configuration order.
func (r *Registry) Dependencies() []state.Declaration {
	var deps []state.Declaration
	for _, p := range r.plugins {
		deps = append(deps, p.Definition.Dependencies...)
	}
	return deps
}

// Link symlinks the plugin directory at path into dir under the plugin's
// name, so it is used in place of a downloaded release. An existing link is
// replaced; an installed release is not.
func Link(path, dir string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	def, err := LoadDefinition(filepath.Join(abs, DefinitionFile), nil)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	target := filepath.Join(dir, def.Name)
	if info, err := os.Lstat(target); err == nil {
		if info.Mode()&fs.ModeSymlink == 0 {
			return "", fmt.Errorf("plugin %s is already installed at %s", def.Name, target)
		}
		if err := os.Remove(target); err != nil {
			return "", err
		}
	}

	if err := os.Symlink(abs, target); err != nil {
		return "", fmt.Errorf("failed to link plugin: %w", err)
	}
	return target, nil
}

// Installed describes an entry of the plugins directory.
type Installed struct {
	Name    string
	Path    string
	Version string
	Linked  bool
}

// List reports what is installed in dir, sorted by name.
func List(dir string) ([]Installed, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Installed
	for _, e := range entries {
		if e.Name()[0] == '.' {
			continue
		}
		path := filepath.Join(dir, e.Name())
		item := Installed{
			Name:    e.Name(),
			Path:    path,
			Version: InstalledVersion(path),
			Linked:  e.Type()&fs.ModeSymlink != 0,
		}
		if item.Linked {
			if resolved, err := os.Readlink(path); err == nil {
				item.Path = resolved
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
