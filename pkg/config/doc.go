// Package config loads the nk configuration file and validates documents
// against CUE schemas.
//
// # Configuration file
//
// nk reads .nk.yml from the working directory unless --config names another
// file:
//
//	sources:
//	  - ~/dotfiles/state
//	  - ./state
//	plugins:
//	  - ./plugins/files
//	  - nk-plugins/pkg@v1.2.0
//	  - owner/monorepo#services
//	policies:
//	  - ~/dotfiles/policies
//
// Sources are tilde-expanded and resolved relative to the configuration
// file. Sources that do not exist are dropped; at least one must remain.
//
// # Plugin sources
//
// A plugin source whose second character is "~", "." or "/" (or that starts
// with "/") is a local directory. Anything else is a GitHub release
// reference of the form owner/repo[@version][#plugin]. The version defaults
// to the latest release and the plugin name defaults to the repository name.
//
// # Schemas
//
// SchemaRegistry compiles plugin JSON Schemas into CUE and validates
// declared states against them, collecting every violation. It also holds
// built-in CUE schemas such as the release manifest schema.
package config
