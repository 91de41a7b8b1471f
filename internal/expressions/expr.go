package expressions

import (
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/renvik/convograph/pkg/schema"
)

// ExprLinter parse-checks expressions with expr-lang/expr, the dialect the
// generated scaffold's runtime speaks by default.
// Thread-safe: compiled programs are cached as parse proof and reused.
type ExprLinter struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprLinter creates a new Expr linter.
func NewExprLinter() *ExprLinter {
	return &ExprLinter{cache: make(map[string]*vm.Program)}
}

// Name returns the dialect identifier.
func (l *ExprLinter) Name() string {
	return "expr"
}

// Check compiles the expression without running it. Decision actions
// reference an args environment whose shape is only known at runtime, so
// undefined variables are allowed.
func (l *ExprLinter) Check(expression string) error {
	if expression == "" {
		return schema.NewError(schema.ErrCodeExpression, "empty expression")
	}

	l.mu.RLock()
	_, ok := l.cache[expression]
	l.mu.RUnlock()
	if ok {
		return nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeExpression,
			"expr parse error in %q: %s", expression, err.Error()).WithCause(err)
	}

	l.mu.Lock()
	l.cache[expression] = prg
	l.mu.Unlock()
	return nil
}

var _ Linter = (*ExprLinter)(nil)
