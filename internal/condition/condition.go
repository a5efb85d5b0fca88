// Package condition evaluates if_else comparisons (§4.4.4) and optional
// CEL pre-filters used by the guardrails handler.
package condition

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/lyzr/flowengine/internal/resolver"
)

// Operator is one of the six comparison operators if_else supports.
type Operator string

const (
	GT Operator = ">"
	LT Operator = "<"
	EQ Operator = "="
	GE Operator = ">="
	LE Operator = "<="
	NE Operator = "!="
)

// Compare implements §4.2's numeric-vs-string comparison rule: if both
// resolved operands parse as numeric literals, compare numerically;
// otherwise compare as strings.
func Compare(lhs string, op Operator, rhs string) (bool, error) {
	lhsNum, lhsIsNum := resolver.AsNumber(lhs)
	rhsNum, rhsIsNum := resolver.AsNumber(rhs)

	if lhsIsNum && rhsIsNum {
		return compareNumeric(lhsNum, op, rhsNum)
	}
	return compareString(lhs, op, rhs)
}

func compareNumeric(lhs float64, op Operator, rhs float64) (bool, error) {
	switch op {
	case GT:
		return lhs > rhs, nil
	case LT:
		return lhs < rhs, nil
	case EQ:
		return lhs == rhs, nil
	case GE:
		return lhs >= rhs, nil
	case LE:
		return lhs <= rhs, nil
	case NE:
		return lhs != rhs, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

func compareString(lhs string, op Operator, rhs string) (bool, error) {
	switch op {
	case EQ:
		return lhs == rhs, nil
	case NE:
		return lhs != rhs, nil
	case GT:
		return lhs > rhs, nil
	case LT:
		return lhs < rhs, nil
	case GE:
		return lhs >= rhs, nil
	case LE:
		return lhs <= rhs, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", op)
	}
}

// CELEvaluator evaluates optional deterministic pre-filter expressions
// attached to a guardrails node config (guardrail_expr), letting cheap
// checks short-circuit an expensive LLM judgment call. Expressions see
// the accumulated input as `output`.
type CELEvaluator struct {
	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEvaluator creates an evaluator with a compiled-program cache.
func NewCELEvaluator() *CELEvaluator {
	return &CELEvaluator{cache: make(map[string]cel.Program)}
}

// Eval compiles (if not cached) and evaluates expr against input, returning
// a boolean verdict. Used as a pre-filter only — a false here short-circuits
// the guardrail to a deterministic fail without ever invoking the LLM judge.
func (e *CELEvaluator) Eval(expr string, input map[string]interface{}) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{"output": input})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

func (e *CELEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	env, err := cel.NewEnv(cel.Variable("output", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile CEL expression: %w", issues.Err())
	}

	prg, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build CEL program: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()
	return prg, nil
}
