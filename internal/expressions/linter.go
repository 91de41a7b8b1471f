// Package expressions parse-checks the opaque expression text carried by
// decision blocks. The code generator inserts that text verbatim and never
// evaluates it, so every finding here is advisory: a lint warning in the
// editor, never a gate.
package expressions

// Linter parse-checks an expression in one dialect.
// Two implementations: Expr (default) and CEL, selectable per document.
type Linter interface {
	Name() string
	Check(expression string) error
}
