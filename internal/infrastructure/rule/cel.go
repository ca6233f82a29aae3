// Package rule evaluates offer match rules written in CEL.
//
// Rules see four map-typed variables: order, orderItem, customer and
// fulfillmentGroup. A variable the caller does not supply is bound to an
// empty map, so `has(orderItem.sku)` style guards work everywhere.
package rule

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"offerengine/internal/core/apperror"
	"offerengine/pkg/logger"
)

// Variable names visible to rules.
const (
	VarOrder            = "order"
	VarOrderItem        = "orderItem"
	VarCustomer         = "customer"
	VarFulfillmentGroup = "fulfillmentGroup"
)

var variables = []string{VarOrder, VarOrderItem, VarCustomer, VarFulfillmentGroup}

// CELEvaluator compiles rules once and caches the programs.
type CELEvaluator struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCELEvaluator builds the CEL environment.
func NewCELEvaluator() (*CELEvaluator, error) {
	opts := make([]cel.EnvOption, 0, len(variables))
	for _, name := range variables {
		opts = append(opts, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create cel env: %w", err)
	}
	return &CELEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate compiles expr and checks it yields a bool.
func (e *CELEvaluator) Validate(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := e.program(expr)
	return err
}

// Evaluate runs expr against vars. An empty expression is true.
func (e *CELEvaluator) Evaluate(_ context.Context, expr string, vars map[string]any) (bool, error) {
	if expr == "" {
		return true, nil
	}
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	activation := make(map[string]any, len(variables))
	for _, name := range variables {
		if v, ok := vars[name]; ok && v != nil {
			activation[name] = v
		} else {
			activation[name] = map[string]any{}
		}
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, fmt.Errorf("evaluate rule %q: %w", expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q returned %T, want bool", expr, out.Value())
	}
	return b, nil
}

// Matches is Evaluate with errors logged and treated as a non-match.
func (e *CELEvaluator) Matches(ctx context.Context, expr string, vars map[string]any) bool {
	ok, err := e.Evaluate(ctx, expr, vars)
	if err != nil {
		logger.Warn(ctx, "offer rule evaluation failed", "rule", expr, "error", err)
		return false
	}
	return ok
}

func (e *CELEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, iss := e.env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewInvalidRule(expr, iss.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, apperror.NewInvalidRule(expr, fmt.Errorf("rule yields %s, want bool", ast.OutputType()))
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, apperror.NewInvalidRule(expr, err)
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}
