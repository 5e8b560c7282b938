// Package expression compiles and caches the expression languages nodes use:
// expr for computed session values and jq for HTTP response mapping.
package expression

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ErrEmptyExpression is returned for blank expressions.
var ErrEmptyExpression = errors.New("empty expression")

// ExprEngine evaluates expr-lang expressions. Compiled programs are cached and
// safe to share across goroutines.
type ExprEngine struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEngine creates an empty engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{cache: make(map[string]*vm.Program)}
}

// Compile checks that the expression is valid.
func (e *ExprEngine) Compile(expression string) error {
	_, err := e.getOrCompile(expression)
	return err
}

// Evaluate runs the expression with env as its top-level variables.
func (e *ExprEngine) Evaluate(_ context.Context, expression string, env map[string]any) (any, error) {
	prg, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	if env == nil {
		env = map[string]any{}
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, fmt.Errorf("expr evaluation failed for %q: %w", expression, err)
	}

	return out, nil
}

func (e *ExprEngine) getOrCompile(expression string) (*vm.Program, error) {
	if expression == "" {
		return nil, ErrEmptyExpression
	}

	e.mu.RLock()
	if prg, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prg, nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("expr compile error in %q: %w", expression, err)
	}

	e.cache[expression] = prg

	return prg, nil
}
