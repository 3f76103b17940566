package state

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	tagStart = "{{"
	tagEnd   = "}}"
)

// Renderer substitutes {{ path }} placeholders in strings against a data
// mapping. Rendering is strict: a placeholder whose path does not resolve is
// an error.
type Renderer struct {
	data map[string]any
}

// NewRenderer creates a renderer over data.
func NewRenderer(data map[string]any) *Renderer {
	return &Renderer{data: data}
}

// RenderString renders a single template.
func (r *Renderer) RenderString(tpl string) (string, error) {
	if !strings.Contains(tpl, tagStart) {
		return tpl, nil
	}

	out, err := fasttemplate.ExecuteFuncStringWithErr(tpl, tagStart, tagEnd, func(w io.Writer, tag string) (int, error) {
		path := strings.TrimSpace(tag)
		v, err := Lookup(r.data, path)
		if err != nil {
			return 0, err
		}
		s, err := formatValue(v)
		if err != nil {
			return 0, fmt.Errorf("variable %q: %w", path, err)
		}
		return io.WriteString(w, s)
	})
	if err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", tpl, err)
	}
	return out, nil
}

// RenderValue renders every string scalar inside v. Mapping keys and
// non-string scalars are left as they are.
func (r *Renderer) RenderValue(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return r.RenderString(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			rendered, err := r.RenderValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = rendered
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			rendered, err := r.RenderValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = rendered
		}
		return out, nil
	}
	return v, nil
}

// Render returns a copy of g with every state rendered against g.Vars.
func Render(g *ResolvedGroup) (*ResolvedGroup, error) {
	r := NewRenderer(g.Vars)

	out := NewResolvedGroup(g.Vars)
	for _, d := range g.Declarations {
		states := make([]any, len(d.States))
		for i, s := range d.States {
			rendered, err := r.RenderValue(s)
			if err != nil {
				return nil, fmt.Errorf("declaration %s: %w", d.Name, err)
			}
			states[i] = rendered
		}
		out.AddDeclaration(Declaration{Name: d.Name, States: states})
	}
	return out, nil
}

// Lookup resolves a dotted path such as "git.email" or "roles.0" in data.
// List elements may also be written as "roles.[0]".
func Lookup(data map[string]any, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("empty variable path")
	}

	var cur any = data
	for _, seg := range strings.Split(path, ".") {
		seg = strings.TrimSuffix(strings.TrimPrefix(seg, "["), "]")

		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, fmt.Errorf("variable %q not found", path)
			}
			cur = v
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(c) {
				return nil, fmt.Errorf("variable %q not found", path)
			}
			cur = c[i]
		default:
			return nil, fmt.Errorf("variable %q not found", path)
		}
	}
	return cur, nil
}

func formatValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
