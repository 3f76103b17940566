package state

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Declaration is a named list of desired state instances. States are opaque
// values; only the plugin that provisions them interprets their shape.
type Declaration struct {
	Name   string
	States []any
}

// Group is one document of a state file.
type Group struct {
	When         []string
	Vars         map[string]any
	Declarations []Declaration
}

// File is a parsed state file.
type File struct {
	Path   string
	Groups []Group
}

// ResolvedGroup is the fold of every satisfied group. Declarations keep
// first-appearance order.
type ResolvedGroup struct {
	Vars         map[string]any
	Declarations []Declaration

	index map[string]int
}

// NewResolvedGroup creates an empty resolved group seeded with vars.
func NewResolvedGroup(vars map[string]any) *ResolvedGroup {
	r := &ResolvedGroup{
		Vars:  map[string]any{},
		index: map[string]int{},
	}
	r.Vars = MergeVars(r.Vars, vars)
	return r
}

// Declaration looks up a declaration by name.
func (r *ResolvedGroup) Declaration(name string) (Declaration, bool) {
	i, ok := r.index[name]
	if !ok {
		return Declaration{}, false
	}
	return r.Declarations[i], true
}

// AddDeclaration appends d's states to the declaration with the same name,
// creating it if needed.
func (r *ResolvedGroup) AddDeclaration(d Declaration) {
	if r.index == nil {
		r.index = map[string]int{}
	}
	if i, ok := r.index[d.Name]; ok {
		r.Declarations[i].States = append(r.Declarations[i].States, d.States...)
		return
	}
	r.index[d.Name] = len(r.Declarations)
	states := make([]any, len(d.States))
	copy(states, d.States)
	r.Declarations = append(r.Declarations, Declaration{Name: d.Name, States: states})
}

// Merge folds a group into r.
func (r *ResolvedGroup) Merge(g Group) {
	for _, d := range g.Declarations {
		r.AddDeclaration(d)
	}
	r.Vars = MergeVars(r.Vars, g.Vars)
}

// StateCount returns the number of state instances across all declarations.
func (r *ResolvedGroup) StateCount() int {
	n := 0
	for _, d := range r.Declarations {
		n += len(d.States)
	}
	return n
}

// MarshalYAML emits vars followed by declarations in resolution order.
func (r *ResolvedGroup) MarshalYAML() (interface{}, error) {
	decls := &yaml.Node{Kind: yaml.MappingNode}
	for _, d := range r.Declarations {
		var states yaml.Node
		if err := states.Encode(d.States); err != nil {
			return nil, err
		}
		decls.Content = append(decls.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: d.Name},
			&states,
		)
	}

	var vars yaml.Node
	if err := vars.Encode(r.Vars); err != nil {
		return nil, err
	}

	return &yaml.Node{
		Kind: yaml.MappingNode,
		Content: []*yaml.Node{
			{Kind: yaml.ScalarNode, Value: "vars"}, &vars,
			{Kind: yaml.ScalarNode, Value: "declarations"}, decls,
		},
	}, nil
}

// MarshalJSON emits the same shape as MarshalYAML.
func (r *ResolvedGroup) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer

	vars, err := json.Marshal(r.Vars)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"vars":`)
	buf.Write(vars)
	buf.WriteString(`,"declarations":{`)

	for i, d := range r.Declarations {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(d.Name)
		states, err := json.Marshal(d.States)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(states)
	}

	buf.WriteString("}}")
	return buf.Bytes(), nil
}
