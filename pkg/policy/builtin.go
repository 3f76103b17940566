package policy

import (
	"fmt"
	"sort"
)

var builtins = map[string]Policy{
	"unrendered-templates": unrenderedTemplatesPolicy(),
	"released-plugins":     releasedPluginsPolicy(),
}

// Builtin returns the built-in policy with the given name.
func Builtin(name string) (Policy, error) {
	p, ok := builtins[name]
	if !ok {
		return Policy{}, fmt.Errorf("unknown built-in policy %q (available: %v)", name, BuiltinNames())
	}
	return p, nil
}

// BuiltinNames lists the built-in policies in name order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unrenderedTemplatesPolicy denies states that still contain template tags,
// which happens when a state is resolved with rendering disabled or a tag
// was written with a typo the renderer does not recognise.
func unrenderedTemplatesPolicy() Policy {
	return Policy{
		Name:        "builtin:unrendered-templates",
		Description: "States must not contain template tags after rendering",
		Severity:    SeverityError,
		Rego: `package nk.builtin.templates

import rego.v1

deny contains violation if {
	walk(input.state, [path, value])
	is_string(value)
	contains(value, "{{")
	violation := {
		"message": sprintf("state value at %v still contains a template tag: %q", [path, value]),
	}
}
`,
	}
}

// releasedPluginsPolicy warns about states handled by plugins that were not
// installed from a release, such as linked or local development plugins.
func releasedPluginsPolicy() Policy {
	return Policy{
		Name:        "builtin:released-plugins",
		Description: "Plugins should be installed from a versioned release",
		Severity:    SeverityWarning,
		Rego: `package nk.builtin.releases

import rego.v1

deny contains violation if {
	not input.plugin.version
	violation := {
		"message": sprintf("plugin %s is not installed from a release", [input.plugin.name]),
	}
}
`,
	}
}
