package eval_test

import (
	"fmt"

	"github.com/openfroyo/nk/pkg/eval"
)

func ExampleEvaluator_AllContext() {
	e := eval.New(map[string]any{"os": "linux"})

	state := map[string]any{"name": "htop", "manager": "apt"}
	ok, err := e.AllContext([]string{
		`declaration == "packages"`,
		`os == "linux" && state.manager == "apt"`,
	}, "packages", state)

	fmt.Println(ok, err)
	// Output: true <nil>
}
