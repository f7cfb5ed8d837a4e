package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/corvidaelabs/oddbot/internal/squeak"
)

// Filter is a compiled per-connection CEL expression over a squeak. The
// expression sees id, content and author as strings, ts_ms (the creation
// time encoded in the id) and now_ms. A nil Filter matches everything.
type Filter struct {
	expr string
	prog cel.Program
}

// CompileFilter compiles expr. An empty expression yields a nil Filter.
func CompileFilter(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("content", cel.StringType),
		cel.Variable("author", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return nil, err
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("filter: %w", iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("filter: expression must be boolean, got %s", out)
	}
	prog, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	return &Filter{expr: expr, prog: prog}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the filter against s. Evaluation errors count as no match.
func (f *Filter) Match(s squeak.Squeak) bool {
	if f == nil {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"id":      s.ID.String(),
		"content": s.Content,
		"author":  s.Author.Name,
		"ts_ms":   s.ID.Ms(),
		"now_ms":  time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
