package state

import (
	"fmt"

	"github.com/openfroyo/nk/pkg/eval"
)

// Options controls Resolve.
type Options struct {
	// Sources are the state directories, in priority order.
	Sources []string

	// Vars seed the resolved variables (builtin and global user vars).
	Vars map[string]any

	// Dependencies are declarations contributed by plugins, merged before
	// any group.
	Dependencies []Declaration

	// Render enables template rendering of states.
	Render bool
}

// Filter returns the groups of files whose conditions hold in the global
// scope, in file and document order.
func Filter(ev *eval.Evaluator, files []File) ([]Group, error) {
	var groups []Group
	for _, f := range files {
		for i, g := range f.Groups {
			ok, err := ev.All(g.When)
			if err != nil {
				return nil, fmt.Errorf("%s: group %d: %w", f.Path, i, err)
			}
			if ok {
				groups = append(groups, g)
			}
		}
	}
	return groups, nil
}

// Resolve finds, filters, merges and optionally renders the state for this
// machine.
func Resolve(ev *eval.Evaluator, opts Options) (*ResolvedGroup, error) {
	files, err := FindAll(opts.Sources)
	if err != nil {
		return nil, err
	}

	groups, err := Filter(ev, files)
	if err != nil {
		return nil, err
	}

	resolved := Fold(opts.Vars, opts.Dependencies, groups)
	if !opts.Render {
		return resolved, nil
	}
	return Render(resolved)
}
