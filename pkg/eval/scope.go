package eval

// Scope is an immutable variable table. Lookups fall through to the parent
// scope when a name is not bound locally.
type Scope struct {
	vars   map[string]any
	parent *Scope
}

// NewScope creates a root scope. The map is not copied and must not be
// modified afterwards.
func NewScope(vars map[string]any) *Scope {
	if vars == nil {
		vars = map[string]any{}
	}
	return &Scope{vars: vars}
}

// With returns a child scope that shadows s with vars.
func (s *Scope) With(vars map[string]any) *Scope {
	return &Scope{vars: vars, parent: s}
}

// Lookup resolves a name, walking parent scopes.
func (s *Scope) Lookup(name string) (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}
