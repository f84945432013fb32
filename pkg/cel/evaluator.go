package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Activation is the variable set a filter expression sees.
type Activation struct {
	Message map[string]interface{}
	RawType string
	Feed    string
}

func (a Activation) vars() map[string]interface{} {
	msg := a.Message
	if msg == nil {
		msg = map[string]interface{}{}
	}
	return map[string]interface{}{
		"message":  msg,
		"raw_type": a.RawType,
		"feed":     a.Feed,
	}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("message", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("raw_type", cel.StringType),
		cel.Variable("feed", cel.StringType),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileFilter(expression)
	return err
}

// CompileFilter compiles a boolean expression once so it can be evaluated per message.
func (e *Evaluator) CompileFilter(expression string) (cel.Program, error) {
	ast, err := e.compileFilter(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return program, nil
}

func (e *Evaluator) compileFilter(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	return ast, nil
}

func (e *Evaluator) EvaluateFilter(ctx context.Context, program cel.Program, act Activation) (bool, error) {
	result, _, err := program.ContextEval(ctx, act.vars())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}
