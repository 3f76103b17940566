// Package eval implements the condition language used by state groups, plugin
// definitions and release manifests.
//
// A condition is a single boolean expression. The language is intentionally
// small: literals, variable references with member and index access,
// comparisons, membership tests and boolean operators. Expressions are parsed
// with the Starlark expression grammar and compiled into a restricted tree;
// anything outside the supported subset (calls, arithmetic, comprehensions,
// lambdas) is rejected at compile time.
//
// Both the word operators (and, or, not) and their symbolic spellings
// (&&, ||, !) are accepted:
//
//	os == "linux" && "desktop" in roles
//	not (state.version == "latest")
//
// Rules are evaluated against a read-only Scope. An Evaluator owns the global
// scope and caches compiled rules, so it is safe for concurrent use.
package eval
