package plugins

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nk/pkg/state"
)

// DefinitionFile is the file describing a plugin inside its directory.
const DefinitionFile = "plugin.yml"

// Provision holds the conditions deciding which states a plugin takes.
type Provision struct {
	// When is evaluated per state with declaration and state in scope.
	When []string
}

// Definition describes a plugin.
type Definition struct {
	// Name identifies the plugin in logs, ordering and the install dir.
	Name string

	// Executable is the program to run, relative to the plugin directory.
	Executable string

	// When decides whether the plugin is available on this machine.
	When []string

	// Provision decides which states the plugin provisions.
	Provision Provision

	// After lists declarations whose plugins must run first.
	After []string

	// Dependencies are declarations merged into the resolved state before
	// any group, for example packages the plugin itself needs.
	Dependencies []state.Declaration

	// Schema is a JSON Schema every provisioned state must satisfy.
	Schema any
}

// Partial is one document of plugin.yml. Every field is optional.
type Partial struct {
	Name         string
	Executable   string
	When         []string
	Provision    Provision
	After        []string
	Dependencies []state.Declaration
	Schema       any
}

// DefinitionBuilder merges partials in order. For each field the last
// non-empty value wins, except When, which only the first partial sets.
type DefinitionBuilder struct {
	def     Definition
	started bool
}

// Apply merges p into the builder.
func (b *DefinitionBuilder) Apply(p Partial) {
	if !b.started {
		b.def.When = p.When
		b.started = true
	}
	if p.Name != "" {
		b.def.Name = p.Name
	}
	if p.Executable != "" {
		b.def.Executable = p.Executable
	}
	if len(p.Provision.When) > 0 {
		b.def.Provision.When = p.Provision.When
	}
	if len(p.After) > 0 {
		b.def.After = p.After
	}
	if len(p.Dependencies) > 0 {
		b.def.Dependencies = p.Dependencies
	}
	if p.Schema != nil {
		b.def.Schema = p.Schema
	}
}

// Build returns the merged definition. Name and executable are required.
func (b *DefinitionBuilder) Build() (Definition, error) {
	var errs []error
	if b.def.Name == "" {
		errs = append(errs, errors.New("missing field: name"))
	}
	if b.def.Executable == "" {
		errs = append(errs, errors.New("missing field: executable"))
	}
	if err := errors.Join(errs...); err != nil {
		return Definition{}, err
	}
	return b.def, nil
}

// PartialFilter decides whether a partial applies, given its conditions.
type PartialFilter func(when []string) (bool, error)

// LoadDefinition reads plugin.yml at path. The first document is always
// applied and its when becomes the plugin's When; it is left to the caller
// to decide whether the plugin applies. Every following document is applied
// only if its when passes filter. A nil filter applies every document.
func LoadDefinition(path string, filter PartialFilter) (Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return Definition{}, fmt.Errorf("failed to open plugin definition: %w", err)
	}
	defer f.Close()

	partials, err := ParsePartials(f)
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}

	var b DefinitionBuilder
	for i, p := range partials {
		if i > 0 && filter != nil {
			ok, err := filter(p.When)
			if err != nil {
				return Definition{}, fmt.Errorf("%s: document %d: %w", path, i, err)
			}
			if !ok {
				continue
			}
		}
		b.Apply(p)
	}

	def, err := b.Build()
	if err != nil {
		return Definition{}, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParsePartials decodes every document of a plugin definition.
func ParsePartials(r io.Reader) ([]Partial, error) {
	dec := yaml.NewDecoder(r)

	var partials []Partial
	for i := 0; ; i++ {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		if len(doc.Content) == 0 || doc.Content[0].Tag == "!!null" {
			continue
		}

		p, err := parsePartial(doc.Content[0])
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		partials = append(partials, p)
	}

	return partials, nil
}

func parsePartial(root *yaml.Node) (Partial, error) {
	if root.Kind != yaml.MappingNode {
		return Partial{}, fmt.Errorf("line %d: plugin definition must be a mapping", root.Line)
	}

	var p Partial
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]

		var err error
		switch key {
		case "name":
			err = value.Decode(&p.Name)
		case "executable":
			err = value.Decode(&p.Executable)
		case "when":
			p.When, err = state.OneOrManyStrings(value)
		case "provision":
			p.Provision, err = parseProvision(value)
		case "after":
			p.After, err = state.OneOrManyStrings(value)
		case "dependencies":
			p.Dependencies, err = parseDependencies(value)
		case "schema":
			p.Schema, err = state.DecodeValue(value)
		default:
			err = fmt.Errorf("unknown field")
		}
		if err != nil {
			return Partial{}, fmt.Errorf("line %d: %s: %w", value.Line, key, err)
		}
	}

	return p, nil
}

func parseProvision(node *yaml.Node) (Provision, error) {
	if node.Kind != yaml.MappingNode {
		return Provision{}, fmt.Errorf("expected a mapping")
	}
	var p Provision
	for i := 0; i+1 < len(node.Content); i += 2 {
		switch key := node.Content[i].Value; key {
		case "when":
			when, err := state.OneOrManyStrings(node.Content[i+1])
			if err != nil {
				return Provision{}, fmt.Errorf("when: %w", err)
			}
			p.When = when
		default:
			return Provision{}, fmt.Errorf("unknown field %q", key)
		}
	}
	return p, nil
}

func parseDependencies(node *yaml.Node) ([]state.Declaration, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping of declarations")
	}
	deps := make([]state.Declaration, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		d, err := state.DecodeDeclaration(node.Content[i].Value, node.Content[i+1])
		if err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, nil
}
