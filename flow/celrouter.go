package flow

import (
	"context"

	"github.com/google/cel-go/cel"
)

// CELRouter compiles expr as a CEL expression over a single variable,
// output, and returns a Router that evaluates it against each
// invocation's node output. The router returns the CEL result's native
// Go value without converting it: a string result becomes one successor,
// while a null result or a list built inside expr does not arrive as nil,
// []string or []any, so the executor's dynamic-edge normalization rejects
// it with INVALID_DYNAMIC_EDGE_RESULT.
//
// This lets a graph's routing logic live in a data-driven expression
// string instead of a Go closure, the same rule-engine role google/cel-go
// plays in 88lin-divinesense.
func CELRouter(expr string) (Router, error) {
	env, err := cel.NewEnv(cel.Variable("output", cel.DynType))
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, output any) (any, error) {
		out, _, err := prg.Eval(map[string]any{"output": output})
		if err != nil {
			return nil, err
		}
		return out.Value(), nil
	}, nil
}
