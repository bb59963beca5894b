package linker

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/grovetools/superstate/errors"
	"github.com/grovetools/superstate/internal/query"
	"github.com/grovetools/superstate/pkg/models"
)

// DefaultProgramCacheSize bounds the number of compiled formulas kept.
const DefaultProgramCacheSize = 512

// ExprEvaluator evaluates formulas with expr-lang. Compiled programs are
// cached by expression text.
//
// Formulas see:
//
//	prop("Name")     effective value of a column of the current row
//	row              all effective values of the current row
//	file             attributes of the row's path (name, path, tags, ...)
//	spacesOf(path)   spaces a path belongs to
//	members(space)   paths belonging to a space
//	title(path)      display title of a path
type ExprEvaluator struct {
	programs *lru.Cache[string, *vm.Program]
}

// NewExprEvaluator creates an evaluator caching up to size programs.
func NewExprEvaluator(size int) (*ExprEvaluator, error) {
	if size <= 0 {
		size = DefaultProgramCacheSize
	}
	cache, err := lru.New[string, *vm.Program](size)
	if err != nil {
		return nil, err
	}
	return &ExprEvaluator{programs: cache}, nil
}

// Evaluate runs expression against scope.
func (e *ExprEvaluator) Evaluate(expression string, scope Scope) (models.Value, error) {
	env := buildEnv(scope)
	program, ok := e.programs.Get(expression)
	if !ok {
		var err error
		program, err = expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			return models.Empty(), errors.Wrap(err, errors.ErrCodeExpressionFailed, "compile formula").
				WithDetail("formula", expression)
		}
		e.programs.Add(expression, program)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return models.Empty(), errors.Wrap(err, errors.ErrCodeExpressionFailed, "evaluate formula").
			WithDetail("formula", expression)
	}
	return models.FromNative(out), nil
}

func buildEnv(scope Scope) map[string]interface{} {
	row := make(map[string]interface{}, len(scope.Row))
	for k, v := range scope.Row {
		row[k] = v.Native()
	}

	file := map[string]interface{}{}
	if scope.Path != nil {
		rec := query.PathRecord{State: scope.Path}
		for _, f := range []string{"path", "name", "parent", "type", "subtype", "tags", "spaces", "outlinks", "rank"} {
			file[f] = rec.Value(f).Native()
		}
	}

	prop := func(name string) interface{} {
		if v, ok := scope.Row[name]; ok {
			return v.Native()
		}
		if scope.Path != nil {
			return scope.Path.Metadata[name]
		}
		return nil
	}

	list := func(items []string) []interface{} {
		out := make([]interface{}, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out
	}
	spacesOf := func(p string) []interface{} {
		if scope.Source == nil {
			return nil
		}
		return list(scope.Source.SpacesOf(p))
	}
	members := func(space string) []interface{} {
		if scope.Source == nil {
			return nil
		}
		return list(scope.Source.Members(space))
	}
	title := func(p string) string {
		if scope.Source == nil {
			return ""
		}
		return scope.Source.Path(p).Title()
	}

	return map[string]interface{}{
		"row":      row,
		"file":     file,
		"prop":     prop,
		"spacesOf": spacesOf,
		"members":  members,
		"title":    title,
	}
}
