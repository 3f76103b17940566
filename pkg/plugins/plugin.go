// Package plugins acquires, loads and filters provisioning plugins.
//
// Local plugins are used in place. Remote plugins are published as GitHub
// releases carrying a manifest.yml and one tar.gz asset per supported
// platform; they are installed under the nk plugins directory and only
// re-downloaded when the installed version differs from the requested one.
package plugins

import (
	"path/filepath"

	"github.com/openfroyo/nk/pkg/config"
)

// Plugin is a plugin installed on disk.
type Plugin struct {
	// Path is the plugin directory.
	Path string

	// Definition is the merged plugin.yml.
	Definition Definition

	// Index is the plugin's position in the configuration. It only breaks
	// ties when ordering execution.
	Index int

	// Source is the configuration entry the plugin came from.
	Source config.PluginSource

	// Version is the installed release tag, empty for local plugins.
	Version string
}

// Name returns the plugin's name.
func (p *Plugin) Name() string { return p.Definition.Name }

// ExecutablePath returns the absolute path of the plugin executable.
func (p *Plugin) ExecutablePath() string {
	if filepath.IsAbs(p.Definition.Executable) {
		return p.Definition.Executable
	}
	return filepath.Join(p.Path, p.Definition.Executable)
}
