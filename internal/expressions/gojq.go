package expressions

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/renvik/convograph/pkg/schema"
)

// QueryEngine runs jq programs over flow documents, backing the CLI
// `query` command and the MCP flow_query tool.
// Thread-safe: compiled *gojq.Code objects are cached and reused.
type QueryEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewQueryEngine creates a new jq query engine.
func NewQueryEngine() *QueryEngine {
	return &QueryEngine{cache: make(map[string]*gojq.Code)}
}

// Query compiles (or retrieves from cache) a jq program and runs it against
// the document. jq programs can produce multiple outputs: exactly one output
// is returned directly, several are collected into []any.
func (e *QueryEngine) Query(ctx context.Context, program string, doc *schema.FlowDocument) (any, error) {
	if program == "" {
		return nil, schema.NewError(schema.ErrCodeExpression, "empty jq program")
	}

	code, err := e.getOrCompile(program)
	if err != nil {
		return nil, err
	}

	// Round-trip through JSON so gojq sees plain maps and slices.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "serialize flow document").WithCause(err)
	}
	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, schema.NewError(schema.ErrCodeExpression, "reshape flow document").WithCause(err)
	}

	iter := code.RunWithContext(ctx, input)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if qerr, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.ErrCodeExpression,
				"jq query failed for %q: %s", program, qerr.Error()).WithCause(qerr)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled program or compiles and caches one.
func (e *QueryEngine) getOrCompile(program string) (*gojq.Code, error) {
	e.mu.RLock()
	if code, ok := e.cache[program]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[program]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(program)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"jq parse error in %q: %s", program, err.Error()).WithCause(err)
	}

	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExpression,
			"jq compile error in %q: %s", program, err.Error()).WithCause(err)
	}

	e.cache[program] = code
	return code, nil
}
