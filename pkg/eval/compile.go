package eval

import (
	"fmt"
	"strings"
	"unicode"

	"go.starlark.net/syntax"
)

// Program is a compiled condition.
type Program struct {
	rule string
	root node
}

// Rule returns the source text the program was compiled from.
func (p *Program) Rule() string { return p.rule }

// Compile parses a rule and lowers it into the restricted expression tree.
func Compile(rule string) (*Program, error) {
	if strings.TrimSpace(rule) == "" {
		return nil, &Error{Rule: rule, Err: fmt.Errorf("empty condition")}
	}

	// Parenthesizing makes line breaks and leading whitespace insignificant.
	src := "(" + normalizeOperators(rule) + "\n)"
	expr, err := syntax.ParseExpr("condition", src, 0)
	if err != nil {
		return nil, &Error{Rule: rule, Err: err}
	}

	root, err := lower(expr)
	if err != nil {
		return nil, &Error{Rule: rule, Err: err}
	}

	return &Program{rule: rule, root: root}, nil
}

// Run evaluates the program in scope. The result must be a boolean.
func (p *Program) Run(scope *Scope) (bool, error) {
	v, err := p.root.eval(scope)
	if err != nil {
		return false, &Error{Rule: p.rule, Err: err}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &Error{Rule: p.rule, Err: fmt.Errorf("condition evaluated to %s, expected bool", typeName(v))}
	}
	return b, nil
}

// keywordPrefix marks identifiers that would otherwise scan as Starlark
// keywords. lower strips it again.
const keywordPrefix = "__nk_kw_"

// mangled holds the Starlark keywords and reserved words that are plain
// variable names in a condition. and, or, not and in keep their meaning.
var mangled = map[string]bool{
	"break": true, "continue": true, "def": true, "elif": true, "else": true,
	"for": true, "if": true, "lambda": true, "load": true, "pass": true,
	"return": true, "while": true,
	"as": true, "assert": true, "async": true, "await": true, "class": true,
	"del": true, "except": true, "finally": true, "from": true, "global": true,
	"import": true, "is": true, "nonlocal": true, "raise": true, "try": true,
	"with": true, "yield": true,
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// normalizeOperators rewrites the symbolic boolean operators into their
// keyword form and prefixes identifiers that collide with Starlark keywords.
// Quoted strings are copied through untouched.
func normalizeOperators(src string) string {
	var sb strings.Builder
	sb.Grow(len(src) + 8)

	runes := []rune(src)
	var quote rune
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if quote != 0 {
			sb.WriteRune(r)
			switch {
			case r == '\\' && i+1 < len(runes):
				i++
				sb.WriteRune(runes[i])
			case r == quote:
				quote = 0
			}
			continue
		}

		switch {
		case r == '"' || r == '\'':
			quote = r
			sb.WriteRune(r)
		case (r == '_' || unicode.IsLetter(r)) && (i == 0 || !isIdentRune(runes[i-1])):
			j := i
			for j < len(runes) && isIdentRune(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			if mangled[word] {
				sb.WriteString(keywordPrefix)
			}
			sb.WriteString(word)
			i = j - 1
		case r == '&' && i+1 < len(runes) && runes[i+1] == '&':
			sb.WriteString(" and ")
			i++
		case r == '|' && i+1 < len(runes) && runes[i+1] == '|':
			sb.WriteString(" or ")
			i++
		case r == '!' && (i+1 >= len(runes) || runes[i+1] != '='):
			sb.WriteString(" not ")
		default:
			sb.WriteRune(r)
		}
	}

	return sb.String()
}

// lower converts a Starlark syntax tree into a condition tree.
func lower(e syntax.Expr) (node, error) {
	switch e := e.(type) {
	case *syntax.Literal:
		switch e.Token {
		case syntax.STRING:
			return literal{v: e.Value.(string)}, nil
		case syntax.INT:
			v, ok := e.Value.(int64)
			if !ok {
				return nil, fmt.Errorf("integer literal %s out of range", e.Raw)
			}
			return literal{v: v}, nil
		case syntax.FLOAT:
			return literal{v: e.Value.(float64)}, nil
		default:
			return nil, fmt.Errorf("unsupported literal %s", e.Raw)
		}

	case *syntax.Ident:
		switch e.Name {
		case "true":
			return literal{v: true}, nil
		case "false":
			return literal{v: false}, nil
		case "null":
			return literal{v: nil}, nil
		}
		return ident{name: strings.TrimPrefix(e.Name, keywordPrefix)}, nil

	case *syntax.ParenExpr:
		return lower(e.X)

	case *syntax.DotExpr:
		x, err := lower(e.X)
		if err != nil {
			return nil, err
		}
		return member{x: x, name: strings.TrimPrefix(e.Name.Name, keywordPrefix)}, nil

	case *syntax.IndexExpr:
		x, err := lower(e.X)
		if err != nil {
			return nil, err
		}
		key, err := lower(e.Y)
		if err != nil {
			return nil, err
		}
		return index{x: x, key: key}, nil

	case *syntax.ListExpr:
		elems := make([]node, 0, len(e.List))
		for _, item := range e.List {
			n, err := lower(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, n)
		}
		return list{elems: elems}, nil

	case *syntax.UnaryExpr:
		x, err := lower(e.X)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case syntax.NOT:
			return not{x: x}, nil
		case syntax.MINUS:
			if lit, ok := x.(literal); ok {
				switch v := lit.v.(type) {
				case int64:
					return literal{v: -v}, nil
				case float64:
					return literal{v: -v}, nil
				}
			}
			return nil, fmt.Errorf("unary minus is only supported on numeric literals")
		}
		return nil, fmt.Errorf("unsupported operator %s", e.Op)

	case *syntax.BinaryExpr:
		switch e.Op {
		case syntax.EQL, syntax.NEQ, syntax.LT, syntax.GT, syntax.LE, syntax.GE,
			syntax.AND, syntax.OR, syntax.IN, syntax.NOT_IN:
		default:
			return nil, fmt.Errorf("unsupported operator %s", e.Op)
		}
		x, err := lower(e.X)
		if err != nil {
			return nil, err
		}
		y, err := lower(e.Y)
		if err != nil {
			return nil, err
		}
		return binary{op: e.Op, x: x, y: y}, nil
	}

	return nil, fmt.Errorf("unsupported expression %T", e)
}
