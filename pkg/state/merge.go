package state

// MergeVars deep-merges src over dst and returns the result. Mappings merge
// key by key; any other value in src replaces the value in dst. Lists are
// replaced, never concatenated. Neither argument is modified.
func MergeVars(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = MergeValue(out[k], v)
	}
	return out
}

// MergeValue merges b over a using the MergeVars rule.
func MergeValue(a, b any) any {
	am, aok := a.(map[string]any)
	bm, bok := b.(map[string]any)
	if aok && bok {
		return MergeVars(am, bm)
	}
	return b
}

// Fold merges groups into a new resolved group seeded with vars and the
// given dependency declarations, in order.
func Fold(vars map[string]any, dependencies []Declaration, groups []Group) *ResolvedGroup {
	r := NewResolvedGroup(vars)
	for _, d := range dependencies {
		r.AddDeclaration(d)
	}
	for _, g := range groups {
		r.Merge(g)
	}
	return r
}
