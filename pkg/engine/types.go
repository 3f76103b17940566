package engine

import (
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/runner/protocol"
)

// DeclaredState is one state instance tagged with its declaration, the unit
// routed to a plugin.
type DeclaredState = protocol.DeclaredState

// ExecutionSet pairs a plugin with the states it will provision.
type ExecutionSet struct {
	Plugin *plugins.Plugin
	States []DeclaredState
}

// Declarations returns the names of the declarations the set provisions,
// in first-appearance order.
func (s *ExecutionSet) Declarations() []string {
	seen := make(map[string]bool)
	var names []string
	for _, ds := range s.States {
		if !seen[ds.Declaration] {
			seen[ds.Declaration] = true
			names = append(names, ds.Declaration)
		}
	}
	return names
}

// MatchResult is the output of Match.
type MatchResult struct {
	// Sets holds one ExecutionSet per plugin, ordered by first match.
	Sets []*ExecutionSet

	// Unmatched are the states no plugin accepted, in declaration order.
	Unmatched []DeclaredState
}

// StateCount returns the number of matched states.
func (m *MatchResult) StateCount() int {
	n := 0
	for _, s := range m.Sets {
		n += len(s.States)
	}
	return n
}
