// Package state loads state files, filters their groups by condition and
// folds them into a single ResolvedGroup.
//
// A state file holds one or more YAML documents. Each document is a Group:
//
//	when: os == "linux"
//	vars:
//	  editor: vim
//	packages:
//	  - git
//	  - "{{ editor }}"
//
// The optional "when" key holds one condition or a list of them, "vars" is a
// mapping of user variables, and every other key is a declaration whose
// value is one state (scalar or mapping) or many (sequence).
//
// Groups whose conditions hold are merged in source, file and document order.
// Variables are merged recursively for mappings and replaced otherwise;
// declarations concatenate their states. After merging, string scalars in
// every state may be rendered as templates against the merged variables.
package state
