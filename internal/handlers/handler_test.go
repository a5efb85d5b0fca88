package handlers

import (
	"context"
	"testing"

	"github.com/lyzr/flowengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOutput_ShallowRightBiased(t *testing.T) {
	input := map[string]interface{}{"a": 1, "b": 2}
	produced := map[string]interface{}{"b": 3, "c": 4}

	out := MergeOutput(input, produced)

	assert.Equal(t, map[string]interface{}{"a": 1, "b": 3, "c": 4}, out)
	// input must not be mutated by the merge.
	assert.Equal(t, 2, input["b"])
}

func TestRegistry_DispatchUnknownType(t *testing.T) {
	reg := NewRegistry()
	node := model.Node{ID: "n1", Type: model.NodeType("bogus")}

	_, err := reg.Dispatch(context.Background(), Context{}, node, &model.Workflow{})

	var fail *Fail
	require.ErrorAs(t, err, &fail)
	assert.Contains(t, fail.Reason, "unknown node type")
}

func TestRegistry_DispatchRoutesToRegisteredHandler(t *testing.T) {
	reg := NewRegistry()
	reg.Register(model.NodeStart, StartHandler{})

	wf := &model.Workflow{
		Nodes: []model.Node{{ID: "start", Type: model.NodeStart}},
		Edges: []model.Edge{{SourceNode: "start", TargetNode: "next"}},
	}

	result, err := reg.Dispatch(context.Background(), Context{Input: map[string]interface{}{"x": 1}}, wf.Nodes[0], wf)
	require.NoError(t, err)
	assert.Equal(t, []string{"next"}, result.NextNodeIDs)
}

func TestStartHandler_PassesInputThroughAndFansOut(t *testing.T) {
	wf := &model.Workflow{
		Nodes: []model.Node{{ID: "start", Type: model.NodeStart}},
		Edges: []model.Edge{{SourceNode: "start", TargetNode: "a"}, {SourceNode: "start", TargetNode: "b"}},
	}
	input := map[string]interface{}{"foo": "bar"}

	result, err := StartHandler{}.Handle(context.Background(), Context{Input: input}, wf.Nodes[0], wf)

	require.NoError(t, err)
	assert.Equal(t, input, result.Output)
	assert.ElementsMatch(t, []string{"a", "b"}, result.NextNodeIDs)
}

func TestEndHandler_TerminatesWithNoSuccessors(t *testing.T) {
	input := map[string]interface{}{"final": true}
	result, err := EndHandler{}.Handle(context.Background(), Context{Input: input}, model.Node{}, &model.Workflow{})

	require.NoError(t, err)
	assert.Equal(t, input, result.Output)
	assert.Empty(t, result.NextNodeIDs)
}

func TestForkHandler_FansOutToEveryEdgeWithSameInput(t *testing.T) {
	wf := &model.Workflow{
		Nodes: []model.Node{{ID: "fork", Type: model.NodeFork}},
		Edges: []model.Edge{
			{SourceNode: "fork", TargetNode: "left"},
			{SourceNode: "fork", TargetNode: "right"},
		},
	}
	input := map[string]interface{}{"x": 1}

	result, err := ForkHandler{}.Handle(context.Background(), Context{Input: input}, wf.Nodes[0], wf)

	require.NoError(t, err)
	assert.Equal(t, input, result.Output)
	assert.ElementsMatch(t, []string{"left", "right"}, result.NextNodeIDs)
}
