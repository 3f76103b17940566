package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DAGBuilder orders execution sets by the plugins' `after` constraints.
// An edge B -> A means A's after list names a declaration B provisions.
type DAGBuilder struct {
	// sets maps plugin names to their execution sets
	sets map[string]*ExecutionSet

	// order lists plugin names by configuration index
	order []string

	// adjacencyList maps plugin names to the plugins that must follow them
	adjacencyList map[string][]string

	// inDegree tracks the number of incoming edges for each node
	inDegree map[string]int

	// levels holds plugin names per topological level
	levels [][]string
}

// NewDAGBuilder creates a new DAG builder.
func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		sets:          make(map[string]*ExecutionSet),
		adjacencyList: make(map[string][]string),
		inDegree:      make(map[string]int),
	}
}

// Schedule returns sets in execution order. Unconstrained plugins come
// first, then each following topological level; within a level plugins
// keep their configuration order. A cycle is a configuration error.
func Schedule(sets []*ExecutionSet) ([]*ExecutionSet, error) {
	b := NewDAGBuilder()
	return b.Build(sets)
}

// Build computes the levels for sets and returns them flattened.
func (b *DAGBuilder) Build(sets []*ExecutionSet) ([]*ExecutionSet, error) {
	if len(sets) == 0 {
		return nil, nil
	}

	b.initialize(sets)

	if err := b.detectCycles(); err != nil {
		return nil, err
	}

	b.computeLevels()

	out := make([]*ExecutionSet, 0, len(sets))
	for _, level := range b.levels {
		for _, name := range level {
			out = append(out, b.sets[name])
		}
	}
	return out, nil
}

// initialize indexes the sets and builds the edges.
func (b *DAGBuilder) initialize(sets []*ExecutionSet) {
	provides := make(map[string][]string)
	for _, set := range sets {
		name := set.Plugin.Name()
		b.sets[name] = set
		b.order = append(b.order, name)
		b.inDegree[name] = 0
		for _, decl := range set.Declarations() {
			provides[decl] = append(provides[decl], name)
		}
	}
	b.sortByIndex(b.order)

	for _, name := range b.order {
		seen := make(map[string]bool)
		for _, decl := range b.sets[name].Plugin.Definition.After {
			for _, before := range provides[decl] {
				if before == name || seen[before] {
					continue
				}
				seen[before] = true
				b.adjacencyList[before] = append(b.adjacencyList[before], name)
				b.inDegree[name]++
			}
		}
	}
	for _, followers := range b.adjacencyList {
		b.sortByIndex(followers)
	}
}

func (b *DAGBuilder) sortByIndex(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return b.sets[names[i]].Plugin.Index < b.sets[names[j]].Plugin.Index
	})
}

// detectCycles uses depth-first search to detect circular constraints.
func (b *DAGBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for _, name := range b.order {
		if visited[name] {
			continue
		}
		if cycle := b.detectCyclesUtil(name, visited, recStack, nil); cycle != nil {
			return NewConfigurationError(
				fmt.Sprintf("plugin ordering cycle: %s", formatCycle(cycle)),
				nil,
			).WithCode(ErrCodeCycle).WithPlugin(cycle[0])
		}
	}

	return nil
}

// detectCyclesUtil returns the cycle reachable from name, if any.
func (b *DAGBuilder) detectCyclesUtil(
	name string,
	visited map[string]bool,
	recStack map[string]bool,
	path []string,
) []string {
	visited[name] = true
	recStack[name] = true
	path = append(path, name)

	for _, next := range b.adjacencyList[name] {
		if !visited[next] {
			if cycle := b.detectCyclesUtil(next, visited, recStack, path); cycle != nil {
				return cycle
			}
			continue
		}
		if recStack[next] {
			for i, n := range path {
				if n == next {
					cycle := append([]string{}, path[i:]...)
					return append(cycle, next)
				}
			}
		}
	}

	recStack[name] = false
	return nil
}

// computeLevels assigns topological levels using Kahn's algorithm.
func (b *DAGBuilder) computeLevels() {
	inDegree := make(map[string]int, len(b.inDegree))
	for name, degree := range b.inDegree {
		inDegree[name] = degree
	}

	var current []string
	for _, name := range b.order {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	for len(current) > 0 {
		b.levels = append(b.levels, current)

		var next []string
		for _, name := range current {
			for _, follower := range b.adjacencyList[name] {
				inDegree[follower]--
				if inDegree[follower] == 0 {
					next = append(next, follower)
				}
			}
		}
		b.sortByIndex(next)
		current = next
	}
}

// Levels returns the computed topological levels.
func (b *DAGBuilder) Levels() [][]string {
	return b.levels
}

// ToDOT renders the ordering graph in Graphviz DOT format.
func (b *DAGBuilder) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph nk {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range b.levels {
		fmt.Fprintf(&sb, "  subgraph cluster_level_%d {\n", level)
		fmt.Fprintf(&sb, "    label=\"Level %d\";\n", level)
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			fmt.Fprintf(&sb, "    %q [label=\"%s\\n%d states\"];\n", name, name, len(b.sets[name].States))
		}
		sb.WriteString("  }\n\n")
	}

	for _, name := range b.order {
		for _, follower := range b.adjacencyList[name] {
			fmt.Fprintf(&sb, "  %q -> %q;\n", name, follower)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}
