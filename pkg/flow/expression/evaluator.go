// Package expression evaluates route predicates and quality-gate conditions.
package expression

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator evaluates boolean predicate expressions against an environment.
// It caches compiled programs for repeated evaluations of the same expression.
type Evaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*vm.Program),
	}
}

// Evaluate evaluates a predicate against the given environment and returns its
// boolean result.
//
// Route predicates see the current run state under "state"; quality gates see
// aggregated run metrics under "metrics":
//
//	ok, err := eval.Evaluate(`state.score >= 8`, map[string]interface{}{
//	    "state": map[string]interface{}{"score": 9},
//	})
func (e *Evaluator) Evaluate(expression string, env map[string]interface{}) (bool, error) {
	program, err := e.compile(expression)
	if err != nil {
		return false, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("expression %q evaluation failed: %w", expression, err)
	}

	boolResult, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q must return boolean, got %T", expression, result)
	}

	return boolResult, nil
}

// CompileCheck compiles an expression without evaluating it. Used by the
// config validator to surface predicate syntax errors before any run starts.
func (e *Evaluator) CompileCheck(expression string) error {
	_, err := e.compile(expression)
	return err
}

// compile compiles an expression and caches the result.
func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression,
		// State fields are only known at runtime; the environment is passed
		// per evaluation.
		expr.AllowUndefinedVariables(),
		// Predicates must produce a boolean.
		expr.AsBool(),
	)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = prog
	e.mu.Unlock()

	return prog, nil
}

// CacheSize returns the number of cached expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
