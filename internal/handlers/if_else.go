package handlers

import (
	"context"

	"github.com/lyzr/flowengine/internal/condition"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/resolver"
)

// IfElseHandler implements §4.4.4: resolve lhs/rhs templates, compare
// per the numeric-or-string rule, and route to the matching branch.
type IfElseHandler struct{}

// Handle resolves the condition and selects exactly one of the
// "true"/"false" successor sets (§8 property 5). A missing branch edge
// terminates that path with no successors enqueued.
func (IfElseHandler) Handle(_ context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	lhsTpl, err := configString(node.Config, "lhs")
	if err != nil {
		return Result{}, NewFail("if_else config error", err)
	}
	rhsTpl, err := configString(node.Config, "rhs")
	if err != nil {
		return Result{}, NewFail("if_else config error", err)
	}
	opStr, err := configString(node.Config, "condition")
	if err != nil {
		return Result{}, NewFail("if_else config error", err)
	}

	lhsVal := resolver.Resolve(lhsTpl, hctx.Input)
	rhsVal := resolver.Resolve(rhsTpl, hctx.Input)

	result, err := condition.Compare(lhsVal, condition.Operator(opStr), rhsVal)
	if err != nil {
		return Result{}, NewFail("if_else comparison error", err)
	}

	produced := map[string]interface{}{
		"condition": result,
		"lhs_value": typedValue(lhsVal),
		"rhs_value": typedValue(rhsVal),
		"operator":  opStr,
	}

	branch := "false"
	if result {
		branch = "true"
	}

	return Result{
		Output:      MergeOutput(hctx.Input, produced),
		NextNodeIDs: nodesByHandle(wf, node.ID, branch),
	}, nil
}

// typedValue reports a resolved operand as a number when it parses as
// one (matching §8 S2's expectation that lhs_value/rhs_value surface
// as numbers, not their stringified template form), else as a string.
func typedValue(s string) interface{} {
	if n, ok := resolver.AsNumber(s); ok {
		return n
	}
	return s
}
