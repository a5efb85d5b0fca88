package handlers

import (
	"context"
	"testing"

	"github.com/lyzr/flowengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ifElseWorkflow(node model.Node) *model.Workflow {
	return &model.Workflow{
		Nodes: []model.Node{node},
		Edges: []model.Edge{
			{SourceNode: node.ID, TargetNode: "on-true", SourceHandle: "true"},
			{SourceNode: node.ID, TargetNode: "on-false", SourceHandle: "false"},
		},
	}
}

func TestIfElseHandler_RoutesTrueBranch(t *testing.T) {
	node := model.Node{
		ID:   "check",
		Type: model.NodeIfElse,
		Config: map[string]interface{}{
			"lhs": "{{input.score}}", "rhs": "80", "condition": ">",
		},
	}
	wf := ifElseWorkflow(node)
	input := map[string]interface{}{"score": 95}

	result, err := IfElseHandler{}.Handle(context.Background(), Context{Input: input}, node, wf)

	require.NoError(t, err)
	assert.Equal(t, []string{"on-true"}, result.NextNodeIDs)
	assert.Equal(t, true, result.Output["condition"])
	assert.Equal(t, float64(95), result.Output["lhs_value"])
	assert.Equal(t, float64(80), result.Output["rhs_value"])
}

func TestIfElseHandler_RoutesFalseBranch(t *testing.T) {
	node := model.Node{
		ID:   "check",
		Type: model.NodeIfElse,
		Config: map[string]interface{}{
			"lhs": "{{input.score}}", "rhs": "80", "condition": ">",
		},
	}
	wf := ifElseWorkflow(node)
	input := map[string]interface{}{"score": 10}

	result, err := IfElseHandler{}.Handle(context.Background(), Context{Input: input}, node, wf)

	require.NoError(t, err)
	assert.Equal(t, []string{"on-false"}, result.NextNodeIDs)
	assert.Equal(t, false, result.Output["condition"])
}

func TestIfElseHandler_MissingBranchEdgeYieldsNoSuccessors(t *testing.T) {
	node := model.Node{
		ID:   "check",
		Type: model.NodeIfElse,
		Config: map[string]interface{}{
			"lhs": "2", "rhs": "1", "condition": ">",
		},
	}
	// only a "false" edge exists; the handler evaluates to true, which
	// has no matching edge (§8 scenario S3).
	wf := &model.Workflow{
		Nodes: []model.Node{node},
		Edges: []model.Edge{{SourceNode: "check", TargetNode: "on-false", SourceHandle: "false"}},
	}

	result, err := IfElseHandler{}.Handle(context.Background(), Context{Input: map[string]interface{}{}}, node, wf)

	require.NoError(t, err)
	assert.Empty(t, result.NextNodeIDs)
}

func TestIfElseHandler_MissingConfigFails(t *testing.T) {
	node := model.Node{ID: "check", Type: model.NodeIfElse, Config: map[string]interface{}{}}

	_, err := IfElseHandler{}.Handle(context.Background(), Context{}, node, &model.Workflow{})

	var fail *Fail
	require.ErrorAs(t, err, &fail)
}
