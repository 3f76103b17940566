package eval

import (
	"fmt"
	"sync"
)

// Error is a failure to compile or evaluate a condition.
type Error struct {
	Rule string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("condition %q: %v", e.Rule, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Evaluator evaluates conditions against a fixed global scope. It is safe for
// concurrent use.
type Evaluator struct {
	global *Scope

	// programs caches compiled rules by source text.
	programs sync.Map
}

// New creates an evaluator whose global scope is vars. Rules can read vars
// but never modify them.
func New(vars map[string]any) *Evaluator {
	return &Evaluator{global: NewScope(vars)}
}

// Global returns the evaluator's global scope.
func (e *Evaluator) Global() *Scope { return e.global }

// Contextual returns a scope that extends the global scope with the
// declaration name and state value being matched.
func (e *Evaluator) Contextual(declaration string, state any) *Scope {
	return e.global.With(map[string]any{
		"declaration": declaration,
		"state":       state,
	})
}

func (e *Evaluator) program(rule string) (*Program, error) {
	if p, ok := e.programs.Load(rule); ok {
		return p.(*Program), nil
	}
	p, err := Compile(rule)
	if err != nil {
		return nil, err
	}
	actual, _ := e.programs.LoadOrStore(rule, p)
	return actual.(*Program), nil
}

// EvalIn evaluates one rule in scope.
func (e *Evaluator) EvalIn(scope *Scope, rule string) (bool, error) {
	p, err := e.program(rule)
	if err != nil {
		return false, err
	}
	return p.Run(scope)
}

// Eval evaluates one rule in the global scope.
func (e *Evaluator) Eval(rule string) (bool, error) {
	return e.EvalIn(e.global, rule)
}

// AllIn reports whether every rule holds in scope. Evaluation stops at the
// first rule that is false or fails. An empty list is satisfied.
func (e *Evaluator) AllIn(scope *Scope, rules []string) (bool, error) {
	for _, rule := range rules {
		ok, err := e.EvalIn(scope, rule)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// All reports whether every rule holds in the global scope.
func (e *Evaluator) All(rules []string) (bool, error) {
	return e.AllIn(e.global, rules)
}

// AllContext reports whether every rule holds for a declared state.
func (e *Evaluator) AllContext(rules []string, declaration string, state any) (bool, error) {
	return e.AllIn(e.Contextual(declaration, state), rules)
}
