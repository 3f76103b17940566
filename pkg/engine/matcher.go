package engine

import (
	"github.com/openfroyo/nk/pkg/eval"
	"github.com/openfroyo/nk/pkg/plugins"
	"github.com/openfroyo/nk/pkg/state"
)

// Match routes every state of every declaration to the first plugin, in
// registry order, whose provision.when holds for it. A rule that fails to
// evaluate aborts matching.
func Match(ev *eval.Evaluator, candidates []*plugins.Plugin, declarations []state.Declaration) (*MatchResult, error) {
	result := &MatchResult{}
	byPlugin := make(map[*plugins.Plugin]*ExecutionSet)

	for _, decl := range declarations {
		for _, st := range decl.States {
			ds := DeclaredState{Declaration: decl.Name, State: st}

			p, err := matchState(ev, candidates, ds)
			if err != nil {
				return nil, err
			}
			if p == nil {
				result.Unmatched = append(result.Unmatched, ds)
				continue
			}

			set, ok := byPlugin[p]
			if !ok {
				set = &ExecutionSet{Plugin: p}
				byPlugin[p] = set
				result.Sets = append(result.Sets, set)
			}
			set.States = append(set.States, ds)
		}
	}

	return result, nil
}

func matchState(ev *eval.Evaluator, candidates []*plugins.Plugin, ds DeclaredState) (*plugins.Plugin, error) {
	scope := ev.Contextual(ds.Declaration, ds.State)
	for _, p := range candidates {
		rules := p.Definition.Provision.When
		ok, err := ev.AllIn(scope, rules)
		if err != nil {
			return nil, NewEvaluationError("failed to evaluate provision.when", err).
				WithPlugin(p.Name()).
				WithSource(p.Path)
		}
		if ok {
			return p, nil
		}
	}
	return nil, nil
}

// Filter keeps the states for which rule holds in contextual scope. A rule
// that fails to evaluate for a state does not select it. Sets left empty
// are removed.
func Filter(ev *eval.Evaluator, sets []*ExecutionSet, rule string) ([]*ExecutionSet, error) {
	if _, err := eval.Compile(rule); err != nil {
		return nil, NewEvaluationError("invalid filter", err).
			WithRule(rule).
			WithCode(ErrCodeInvalidFilter)
	}

	var out []*ExecutionSet
	for _, set := range sets {
		var kept []DeclaredState
		for _, ds := range set.States {
			ok, err := ev.EvalIn(ev.Contextual(ds.Declaration, ds.State), rule)
			if err == nil && ok {
				kept = append(kept, ds)
			}
		}
		if len(kept) > 0 {
			out = append(out, &ExecutionSet{Plugin: set.Plugin, States: kept})
		}
	}
	return out, nil
}
