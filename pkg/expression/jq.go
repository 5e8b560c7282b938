package expression

import (
	"context"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
)

// JQEngine evaluates jq queries against decoded JSON documents.
type JQEngine struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewJQEngine creates an empty engine.
func NewJQEngine() *JQEngine {
	return &JQEngine{cache: make(map[string]*gojq.Code)}
}

// Compile checks that the query is valid.
func (e *JQEngine) Compile(query string) error {
	_, err := e.getOrCompile(query)
	return err
}

// Evaluate runs the query. A single output is returned as is, several outputs
// are collected into a slice and no output yields nil.
func (e *JQEngine) Evaluate(ctx context.Context, query string, input any) (any, error) {
	code, err := e.getOrCompile(query)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, normalize(input))

	var results []any

	for {
		val, ok := iter.Next()
		if !ok {
			break
		}

		if err, isErr := val.(error); isErr {
			return nil, fmt.Errorf("jq evaluation failed for %q: %w", query, err)
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

func (e *JQEngine) getOrCompile(query string) (*gojq.Code, error) {
	if query == "" {
		return nil, ErrEmptyExpression
	}

	e.mu.RLock()
	if code, ok := e.cache[query]; ok {
		e.mu.RUnlock()
		return code, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if code, ok := e.cache[query]; ok {
		return code, nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("jq parse error in %q: %w", query, err)
	}

	code, err := gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		return nil, fmt.Errorf("jq compile error in %q: %w", query, err)
	}

	e.cache[query] = code

	return code, nil
}

// normalize converts Go integer types into float64 the way jq expects.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}

		return out
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case int32:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
