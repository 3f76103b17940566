// Package policy gates provisioning with Open Policy Agent (OPA) policies.
//
// Policies are Rego modules listed under `policies` in .nk.yml. Each module
// defines a `deny` set in its own package. Before any plugin is spawned,
// every policy is evaluated once per declared state with this input:
//
//	{
//	    "declaration": "packages",
//	    "state":       {"name": "ripgrep"},
//	    "plugin":      {"name": "pkg", "version": "v1.2.0", "source": "nk-dev/pkg"},
//	    "vars":        {"distro": "arch", ...}
//	}
//
// A deny value is either a message string or an object:
//
//	package local.pins
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.declaration == "packages"
//	    not input.state.version
//	    msg := sprintf("%s must pin a version", [input.state.name])
//	}
//
//	deny contains {"message": "prefer flatpak", "severity": "warning"} if {
//	    input.state.name == "firefox"
//	}
//
// Violations with error severity abort the run together with any schema
// violations. Warnings are only reported.
//
// Built-in policies are referenced by name, for example
// "builtin:unrendered-templates". See BuiltinNames.
package policy
