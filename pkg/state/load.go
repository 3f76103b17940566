package state

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	keyWhen = "when"
	keyVars = "vars"
)

// FindAll walks every source directory in lexical order and parses each
// state file it finds. Dot-prefixed entries and files without a .yml or
// .yaml extension are skipped.
func FindAll(sources []string) ([]File, error) {
	var files []File

	for _, source := range sources {
		err := filepath.WalkDir(source, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != source && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !isStateFile(path) {
				return nil
			}

			f, err := ParseFile(path)
			if err != nil {
				return err
			}
			files = append(files, f)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load state from %s: %w", source, err)
		}
	}

	return files, nil
}

func isStateFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yml" || ext == ".yaml"
}

// ParseFile reads every document of a state file.
func ParseFile(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to open state file: %w", err)
	}
	defer f.Close()

	groups, err := ParseGroups(f)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return File{Path: path, Groups: groups}, nil
}

// ParseGroups decodes a multi-document YAML stream into groups. Empty
// documents are skipped.
func ParseGroups(r io.Reader) ([]Group, error) {
	dec := yaml.NewDecoder(r)

	var groups []Group
	for i := 0; ; i++ {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}

		root := documentRoot(&doc)
		if root == nil {
			continue
		}

		g, err := parseGroup(root)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		groups = append(groups, g)
	}

	return groups, nil
}

// documentRoot returns the top node of a document, or nil for an empty one.
func documentRoot(doc *yaml.Node) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return nil
	}
	return root
}

func parseGroup(root *yaml.Node) (Group, error) {
	if root.Kind != yaml.MappingNode {
		return Group{}, fmt.Errorf("line %d: group must be a mapping", root.Line)
	}

	var g Group
	seen := make(map[string]bool, len(root.Content)/2)

	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valueNode := root.Content[i], root.Content[i+1]
		key := keyNode.Value
		if seen[key] {
			return Group{}, fmt.Errorf("line %d: duplicate key %q", keyNode.Line, key)
		}
		seen[key] = true

		switch key {
		case keyWhen:
			when, err := OneOrManyStrings(valueNode)
			if err != nil {
				return Group{}, fmt.Errorf("line %d: when: %w", valueNode.Line, err)
			}
			g.When = when

		case keyVars:
			v, err := DecodeValue(valueNode)
			if err != nil {
				return Group{}, fmt.Errorf("line %d: vars: %w", valueNode.Line, err)
			}
			if v == nil {
				continue
			}
			vars, ok := v.(map[string]any)
			if !ok {
				return Group{}, fmt.Errorf("line %d: vars must be a mapping", valueNode.Line)
			}
			g.Vars = vars

		default:
			d, err := DecodeDeclaration(key, valueNode)
			if err != nil {
				return Group{}, fmt.Errorf("line %d: %w", valueNode.Line, err)
			}
			g.Declarations = append(g.Declarations, d)
		}
	}

	return g, nil
}

// DecodeDeclaration decodes a declaration value: a sequence holds many
// states, anything else is a single state.
func DecodeDeclaration(name string, node *yaml.Node) (Declaration, error) {
	v, err := DecodeValue(node)
	if err != nil {
		return Declaration{}, fmt.Errorf("declaration %s: %w", name, err)
	}
	if many, ok := v.([]any); ok {
		return Declaration{Name: name, States: many}, nil
	}
	return Declaration{Name: name, States: []any{v}}, nil
}

// OneOrManyStrings decodes a scalar or a sequence of scalars.
func OneOrManyStrings(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil, nil
		}
		return []string{node.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected a string", item.Line)
			}
			out = append(out, item.Value)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected a string or a list of strings")
}

// DecodeValue decodes a YAML node into plain Go values with string-keyed
// maps.
func DecodeValue(node *yaml.Node) (any, error) {
	var v any
	if err := node.Decode(&v); err != nil {
		return nil, err
	}
	return Normalize(v), nil
}

// Normalize converts any map[interface{}]interface{} produced by YAML
// decoding into map[string]any, recursively.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Normalize(val)
		}
		return out
	}
	return v
}
