package expressions

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/renvik/convograph/pkg/schema"
)

// CELLinter parse-checks expressions as Common Expression Language, for
// flows whose runtime evaluates decision actions with CEL.
// Thread-safe: compiled ASTs are cached as parse proof.
type CELLinter struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELLinter creates a CEL linter with a sandboxed environment exposing
// the two variables a decision action can reference:
//   - args:    map(string, dyn) — the function call arguments
//   - context: map(string, dyn) — accumulated conversation context
func NewCELLinter() (*CELLinter, error) {
	mapType := cel.MapType(cel.StringType, cel.DynType)

	env, err := cel.NewEnv(
		cel.Variable("args", mapType),
		cel.Variable("context", mapType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &CELLinter{env: env, cache: make(map[string]cel.Program)}, nil
}

// Name returns the dialect identifier.
func (l *CELLinter) Name() string {
	return "cel"
}

// Check compiles the expression against the sandboxed environment.
func (l *CELLinter) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty expression")
	}

	l.mu.RLock()
	_, ok := l.cache[expression]
	l.mu.RUnlock()
	if ok {
		return nil
	}

	ast, issues := l.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return schema.NewErrorf(schema.ErrCodeExpression,
			"cel parse error in %q: %s", expression, issues.Err().Error()).
			WithCause(issues.Err())
	}

	prg, err := l.env.Program(ast)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExpression,
			"cel program error in %q: %s", expression, err.Error()).WithCause(err)
	}

	l.mu.Lock()
	l.cache[expression] = prg
	l.mu.Unlock()
	return nil
}

var _ Linter = (*CELLinter)(nil)
