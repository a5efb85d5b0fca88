package handlers

import (
	"context"
	"testing"

	"github.com/lyzr/flowengine/internal/llm"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentWorkflow(node model.Node) *model.Workflow {
	return &model.Workflow{
		Nodes: []model.Node{node},
		Edges: []model.Edge{{SourceNode: node.ID, TargetNode: "next"}},
	}
}

func TestAgentHandler_EchoClientReturnsMessage(t *testing.T) {
	node := model.Node{
		ID:   "agent",
		Type: model.NodeAgent,
		Config: map[string]interface{}{
			"llm_model":     "stub-echo",
			"system_prompt": "you are helpful",
			"user_prompt":   "{{input.question}}",
		},
	}
	wf := agentWorkflow(node)
	h := AgentHandler{LLM: llm.EchoClient{}, Tools: NoToolsCatalog{}, Executor: UnimplementedToolExecutor{}, MaxToolLoop: 4}

	result, err := h.Handle(context.Background(), Context{Input: map[string]interface{}{"question": "what is 2+2?"}}, node, wf)

	require.NoError(t, err)
	assert.Equal(t, "what is 2+2?", result.Output["message"])
	assert.Equal(t, []string{"next"}, result.NextNodeIDs)
}

func TestAgentHandler_ToolCallLoopCapFails(t *testing.T) {
	node := model.Node{
		ID:   "agent",
		Type: model.NodeAgent,
		Config: map[string]interface{}{
			"llm_model":     "stub-loop",
			"system_prompt": "sys",
			"user_prompt":   "do it",
			"tools":         []interface{}{},
		},
	}
	wf := agentWorkflow(node)
	h := AgentHandler{
		LLM:         llm.AlwaysToolCallClient{ToolID: "search"},
		Tools:       NoToolsCatalog{},
		Executor:    UnimplementedToolExecutor{},
		MaxToolLoop: 3,
	}

	_, err := h.Handle(context.Background(), Context{Input: map[string]interface{}{}}, node, wf)

	var fail *Fail
	require.ErrorAs(t, err, &fail)
	assert.Equal(t, "tool_call_limit_exceeded", fail.Reason)
}

func TestAgentHandler_MissingConfigFails(t *testing.T) {
	node := model.Node{ID: "agent", Type: model.NodeAgent, Config: map[string]interface{}{}}

	_, err := AgentHandler{LLM: llm.EchoClient{}}.Handle(context.Background(), Context{}, node, &model.Workflow{})

	var fail *Fail
	require.ErrorAs(t, err, &fail)
}
