package eval

import (
	"fmt"
	"strings"

	"go.starlark.net/syntax"
)

type node interface {
	eval(scope *Scope) (any, error)
}

type literal struct{ v any }

func (n literal) eval(*Scope) (any, error) { return n.v, nil }

type list struct{ elems []node }

func (n list) eval(scope *Scope) (any, error) {
	out := make([]any, 0, len(n.elems))
	for _, e := range n.elems {
		v, err := e.eval(scope)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

type ident struct{ name string }

func (n ident) eval(scope *Scope) (any, error) {
	v, ok := scope.Lookup(n.name)
	if !ok {
		return nil, fmt.Errorf("variable not found: %s", n.name)
	}
	return v, nil
}

type member struct {
	x    node
	name string
}

func (n member) eval(scope *Scope) (any, error) {
	x, err := n.x.eval(scope)
	if err != nil {
		return nil, err
	}
	m, ok := x.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot access field %q on %s", n.name, typeName(x))
	}
	return m[n.name], nil
}

type index struct{ x, key node }

func (n index) eval(scope *Scope) (any, error) {
	x, err := n.x.eval(scope)
	if err != nil {
		return nil, err
	}
	key, err := n.key.eval(scope)
	if err != nil {
		return nil, err
	}

	switch x := x.(type) {
	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string, got %s", typeName(key))
		}
		return x[k], nil
	case []any:
		i, ok := toInt(key)
		if !ok {
			return nil, fmt.Errorf("list index must be an int, got %s", typeName(key))
		}
		if i < 0 {
			i += int64(len(x))
		}
		if i < 0 || i >= int64(len(x)) {
			return nil, fmt.Errorf("list index %d out of range (length %d)", i, len(x))
		}
		return x[i], nil
	case string:
		i, ok := toInt(key)
		if !ok {
			return nil, fmt.Errorf("string index must be an int, got %s", typeName(key))
		}
		r := []rune(x)
		if i < 0 || i >= int64(len(r)) {
			return nil, fmt.Errorf("string index %d out of range (length %d)", i, len(r))
		}
		return string(r[i]), nil
	}

	return nil, fmt.Errorf("cannot index %s", typeName(x))
}

type not struct{ x node }

func (n not) eval(scope *Scope) (any, error) {
	x, err := n.x.eval(scope)
	if err != nil {
		return nil, err
	}
	b, ok := x.(bool)
	if !ok {
		return nil, fmt.Errorf("operand of not must be bool, got %s", typeName(x))
	}
	return !b, nil
}

type binary struct {
	op   syntax.Token
	x, y node
}

func (n binary) eval(scope *Scope) (any, error) {
	x, err := n.x.eval(scope)
	if err != nil {
		return nil, err
	}

	if n.op == syntax.AND || n.op == syntax.OR {
		lhs, ok := x.(bool)
		if !ok {
			return nil, fmt.Errorf("left operand of %s must be bool, got %s", n.op, typeName(x))
		}
		if n.op == syntax.AND && !lhs {
			return false, nil
		}
		if n.op == syntax.OR && lhs {
			return true, nil
		}
		y, err := n.y.eval(scope)
		if err != nil {
			return nil, err
		}
		rhs, ok := y.(bool)
		if !ok {
			return nil, fmt.Errorf("right operand of %s must be bool, got %s", n.op, typeName(y))
		}
		return rhs, nil
	}

	y, err := n.y.eval(scope)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case syntax.EQL:
		return equal(x, y), nil
	case syntax.NEQ:
		return !equal(x, y), nil
	case syntax.LT, syntax.GT, syntax.LE, syntax.GE:
		c, err := order(x, y)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case syntax.LT:
			return c < 0, nil
		case syntax.GT:
			return c > 0, nil
		case syntax.LE:
			return c <= 0, nil
		default:
			return c >= 0, nil
		}
	case syntax.IN:
		return contains(y, x)
	case syntax.NOT_IN:
		ok, err := contains(y, x)
		return !ok, err
	}

	return nil, fmt.Errorf("unsupported operator %s", n.op)
}

func contains(container, elem any) (bool, error) {
	switch c := container.(type) {
	case []any:
		for _, v := range c {
			if equal(v, elem) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		k, ok := elem.(string)
		if !ok {
			return false, fmt.Errorf("map membership requires a string key, got %s", typeName(elem))
		}
		_, ok = c[k]
		return ok, nil
	case string:
		s, ok := elem.(string)
		if !ok {
			return false, fmt.Errorf("string membership requires a string, got %s", typeName(elem))
		}
		return strings.Contains(c, s), nil
	}
	return false, fmt.Errorf("cannot test membership in %s", typeName(container))
}
