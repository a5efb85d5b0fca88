package validate

import (
	"testing"

	"github.com/lyzr/flowengine/internal/model"
	"github.com/stretchr/testify/assert"
)

func linearWorkflow() *model.Workflow {
	return &model.Workflow{
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "agent", Type: model.NodeAgent},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{ID: "e1", SourceNode: "start", TargetNode: "agent"},
			{ID: "e2", SourceNode: "agent", TargetNode: "end"},
		},
	}
}

func TestValidate_ValidLinearWorkflow(t *testing.T) {
	res := Validate(linearWorkflow(), Options{})
	assert.True(t, res.OK())
	assert.Empty(t, res.Warnings)
}

func TestValidate_MissingStartNode(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[0].Type = model.NodeAgent

	res := Validate(wf, Options{})

	assert.False(t, res.OK())
	assert.Contains(t, res.Errors[0].Message, "exactly one start node")
}

func TestValidate_MissingEndNode(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[2].Type = model.NodeAgent

	res := Validate(wf, Options{})

	assert.False(t, res.OK())
	found := false
	for _, e := range res.Errors {
		if e.Message == "workflow must contain at least one end node" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_CycleDetected(t *testing.T) {
	wf := &model.Workflow{
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "a", Type: model.NodeAgent},
			{ID: "b", Type: model.NodeAgent},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{ID: "e1", SourceNode: "start", TargetNode: "a"},
			{ID: "e2", SourceNode: "a", TargetNode: "b"},
			{ID: "e3", SourceNode: "b", TargetNode: "a"}, // cycle
			{ID: "e4", SourceNode: "b", TargetNode: "end"},
		},
	}

	res := Validate(wf, Options{})

	assert.False(t, res.OK())
	hasCycleErr := false
	for _, e := range res.Errors {
		if e.Message == "workflow graph contains a cycle reachable from node start" {
			hasCycleErr = true
		}
	}
	assert.True(t, hasCycleErr)
}

func TestValidate_UnreachableNodeFlagged(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes = append(wf.Nodes, model.Node{ID: "orphan", Type: model.NodeAgent})

	res := Validate(wf, Options{})

	assert.False(t, res.OK())
	found := false
	for _, e := range res.Errors {
		if e.Message == "node orphan is unreachable from start" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidate_DanglingEdgeReference(t *testing.T) {
	wf := linearWorkflow()
	wf.Edges = append(wf.Edges, model.Edge{ID: "bad", SourceNode: "agent", TargetNode: "nonexistent"})

	res := Validate(wf, Options{})

	assert.False(t, res.OK())
}

func TestValidate_IfElseMissingBranchIsWarningNotError(t *testing.T) {
	wf := &model.Workflow{
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "check", Type: model.NodeIfElse},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{ID: "e1", SourceNode: "start", TargetNode: "check"},
			{ID: "e2", SourceNode: "check", TargetNode: "end", SourceHandle: "true"},
			// no "false" edge
		},
	}

	res := Validate(wf, Options{})

	assert.True(t, res.OK())
	require := assert.New(t)
	require.Len(res.Warnings, 1)
	require.Contains(res.Warnings[0].Message, "missing a false branch")
}

func TestValidate_MaxNodesExceeded(t *testing.T) {
	wf := linearWorkflow()

	res := Validate(wf, Options{MaxNodes: 2})

	assert.False(t, res.OK())
}

func TestValidate_ForbidCognitiveNesting(t *testing.T) {
	wf := linearWorkflow()
	wf.Nodes[1].Type = model.NodeCognitive

	res := Validate(wf, Options{ForbidCognitive: true})

	assert.False(t, res.OK())
}
