package eval

import (
	"errors"
	"math"
	"sync"
	"testing"
)

func testVars() map[string]any {
	return map[string]any{
		"os":      "linux",
		"distro":  "arch",
		"arch":    "x86_64",
		"roles":   []any{"desktop", "dev"},
		"cores":   8,
		"load":    0.5,
		"enabled": true,
		"git": map[string]any{
			"email": "me@example.com",
			"extra": map[string]any{"signing": true},
		},
	}
}

func TestEval(t *testing.T) {
	e := New(testVars())

	tests := []struct {
		name string
		rule string
		want bool
	}{
		{"string equality", `os == "linux"`, true},
		{"string inequality", `os != "linux"`, false},
		{"single quotes", `distro == 'arch'`, true},
		{"keyword and", `os == "linux" and arch == "x86_64"`, true},
		{"symbolic and", `os == "linux" && arch == "aarch64"`, false},
		{"symbolic or", `os == "macos" || arch == "x86_64"`, true},
		{"symbolic not", `!(os == "macos")`, true},
		{"keyword not", `not enabled`, false},
		{"bool literal", `true`, true},
		{"list membership", `"desktop" in roles`, true},
		{"list non-membership", `"server" not in roles`, true},
		{"list literal", `distro in ["arch", "debian"]`, true},
		{"substring", `"nu" in os`, true},
		{"map key membership", `"email" in git`, true},
		{"member access", `git.email == "me@example.com"`, true},
		{"nested member access", `git.extra.signing`, true},
		{"bracket access", `git["email"] == "me@example.com"`, true},
		{"list index", `roles[0] == "desktop"`, true},
		{"negative list index", `roles[-1] == "dev"`, true},
		{"missing key is null", `git.name == null`, true},
		{"int ordering", `cores >= 4`, true},
		{"int float ordering", `load < 1`, true},
		{"negative literal", `-1 < cores`, true},
		{"string ordering", `"a" < "b"`, true},
		{"mixed type equality", `cores == "8"`, false},
		{"mixed type inequality", `cores != "8"`, true},
		{"numeric equality across types", `cores == 8.0`, true},
		{"bang inside string", `"a!b" != "a && b"`, true},
		{"multi-line rule", "os == \"linux\" and\n  arch == \"x86_64\"", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(tt.rule)
			if err != nil {
				t.Fatalf("Expected no error for %q, got: %v", tt.rule, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.rule, got, tt.want)
			}
		})
	}
}

func TestEvalKeywordNames(t *testing.T) {
	e := New(map[string]any{
		"load":   1,
		"pass":   true,
		"def":    "x",
		"import": []any{"a"},
		"loader": 2,
		"host":   map[string]any{"class": "laptop", "if": "eth0"},
	})

	tests := []struct {
		name string
		rule string
		want bool
	}{
		{"load", `load == 1`, true},
		{"pass", `pass`, true},
		{"def", `def == "x"`, true},
		{"reserved word", `"a" in import`, true},
		{"keyword prefix of a longer name", `loader == 2 and load < loader`, true},
		{"member named like a keyword", `host.class == "laptop" && host.if == "eth0"`, true},
		{"keyword inside a string", `def != "load"`, true},
		{"not in keeps its meaning", `"b" not in import`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Eval(tt.rule)
			if err != nil {
				t.Fatalf("Expected no error for %q, got: %v", tt.rule, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %v, want %v", tt.rule, got, tt.want)
			}
		})
	}
}

func TestEvalLargeUnsigned(t *testing.T) {
	e := New(map[string]any{"big": uint64(math.MaxUint64), "small": uint(3)})

	for _, rule := range []string{
		`big > 9223372036854775807`,
		`big > 1`,
		`-1 < big`,
		`small == 3`,
	} {
		got, err := e.Eval(rule)
		if err != nil {
			t.Fatalf("Expected no error for %q, got: %v", rule, err)
		}
		if !got {
			t.Errorf("Expected %q to hold", rule)
		}
	}
}

func TestEvalErrors(t *testing.T) {
	e := New(testVars())

	tests := []struct {
		name string
		rule string
	}{
		{"empty", ``},
		{"undefined variable", `nope == 1`},
		{"member on non-map", `os.name == "x"`},
		{"ordering across types", `os < 3`},
		{"non-bool result", `os`},
		{"non-bool operand", `os and true`},
		{"function call", `len(roles) > 0`},
		{"arithmetic", `cores + 1 > 2`},
		{"assignment", `os = "linux"`},
		{"comprehension", `[r for r in roles]`},
		{"index out of range", `roles[5] == "x"`},
		{"syntax error", `os ==`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Eval(tt.rule)
			if err == nil {
				t.Fatalf("Expected error for %q", tt.rule)
			}
			var evalErr *Error
			if !errors.As(err, &evalErr) {
				t.Fatalf("Expected *Error, got %T", err)
			}
			if evalErr.Rule != tt.rule {
				t.Errorf("Expected rule %q in error, got %q", tt.rule, evalErr.Rule)
			}
		})
	}
}

func TestAllShortCircuits(t *testing.T) {
	e := New(testVars())

	ok, err := e.All([]string{"true", "false", "undefined_thing == 1"})
	if err != nil {
		t.Fatalf("Expected no error once a rule is false, got: %v", err)
	}
	if ok {
		t.Error("Expected conditions to be unsatisfied")
	}

	ok, err = e.All([]string{"true", "undefined_thing == 1", "false"})
	if err == nil {
		t.Fatal("Expected error from second rule")
	}
	if ok {
		t.Error("Expected false alongside an error")
	}

	ok, err = e.All(nil)
	if err != nil || !ok {
		t.Errorf("Expected empty condition list to hold, got %v, %v", ok, err)
	}
}

func TestAllContext(t *testing.T) {
	e := New(testVars())

	state := map[string]any{"name": "git", "manager": "pacman"}
	rules := []string{`declaration == "packages"`, `state.manager == "pacman"`, `os == "linux"`}

	ok, err := e.AllContext(rules, "packages", state)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !ok {
		t.Error("Expected contextual rules to hold")
	}

	if _, err := e.All([]string{`state.manager == "pacman"`}); err == nil {
		t.Error("Expected state to be undefined in global scope")
	}

	ok, err = e.AllContext([]string{`state == "vim"`}, "packages", "vim")
	if err != nil || !ok {
		t.Errorf("Expected scalar state to match, got %v, %v", ok, err)
	}
}

func TestScopeShadowing(t *testing.T) {
	root := NewScope(map[string]any{"a": 1, "b": 2})
	child := root.With(map[string]any{"a": 10})

	if v, _ := child.Lookup("a"); v != 10 {
		t.Errorf("Expected shadowed a=10, got %v", v)
	}
	if v, _ := child.Lookup("b"); v != 2 {
		t.Errorf("Expected inherited b=2, got %v", v)
	}
	if v, _ := root.Lookup("a"); v != 1 {
		t.Errorf("Expected root a=1 to be untouched, got %v", v)
	}
	if _, ok := child.Lookup("c"); ok {
		t.Error("Expected c to be undefined")
	}
}

func TestNormalizeOperators(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a && b`, `a  and  b`},
		{`a || b`, `a  or  b`},
		{`!a`, ` not a`},
		{`a != b`, `a != b`},
		{`"a && b" == x`, `"a && b" == x`},
		{`'it\'s!' == x`, `'it\'s!' == x`},
	}

	for _, tt := range tests {
		if got := normalizeOperators(tt.in); got != tt.want {
			t.Errorf("normalizeOperators(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConcurrentEval(t *testing.T) {
	e := New(testVars())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ok, err := e.Eval(`"dev" in roles && os == "linux"`)
				if err != nil || !ok {
					t.Errorf("Expected true, got %v, %v", ok, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
