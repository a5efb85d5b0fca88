package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lyzr/flowengine/internal/llm"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/resolver"
	"github.com/lyzr/flowengine/internal/validate"
)

const cognitiveMetaPrompt = `You design small workflow graphs. Given the instruction below,` +
	` emit a JSON object {"nodes":[...], "edges":[...]} in the engine's node/edge schema` +
	` (node: {id, type, config}; edge: {id, source_node, target_node, source_handle?}).` +
	` The graph must have exactly one start node, at least one end node, no cycles,` +
	` no cognitive nodes, and at most 20 nodes total. Respond with ONLY the JSON object.`

// virtualGraph is the wire shape an LLM is asked to emit for a
// cognitive node's generated sub-workflow.
type virtualGraph struct {
	Nodes []model.Node `json:"nodes"`
	Edges []model.Edge `json:"edges"`
}

// CognitiveHandler implements §4.4.8: have an LLM synthesize a virtual
// workflow, validate it, and walk it inline within this single handler
// invocation (one outer ledger entry), never spawning real queue jobs.
type CognitiveHandler struct {
	LLM        llm.Client
	Model      string
	Dispatcher Dispatcher
	MaxNodes   int
}

// Handle synthesizes, validates, and executes a virtual workflow inline.
func (h CognitiveHandler) Handle(ctx context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	instructionTpl, err := configString(node.Config, "cognitive_instruction")
	if err != nil {
		return Result{}, NewFail("cognitive config error", err)
	}
	instruction := resolver.Resolve(instructionTpl, hctx.Input)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: cognitiveMetaPrompt},
		{Role: llm.RoleUser, Content: instruction},
	}

	resp, err := h.LLM.Complete(ctx, h.Model, messages, nil)
	if err != nil {
		return Result{}, NewFail("cognitive LLM call failed", err)
	}

	var vg virtualGraph
	if err := json.Unmarshal([]byte(resp.Text), &vg); err != nil {
		return Result{}, NewFail("cognitive graph parse failure", err)
	}

	virtualWF := &model.Workflow{ID: hctx.WorkflowID, Nodes: vg.Nodes, Edges: vg.Edges}

	maxNodes := h.MaxNodes
	if maxNodes <= 0 {
		maxNodes = 20
	}
	result := validate.Validate(virtualWF, validate.Options{MaxNodes: maxNodes, ForbidCognitive: true})
	if !result.OK() {
		return Result{}, NewFail("cognitive graph invalid", joinValidationErrors(result))
	}

	output, toolCalls, err := h.walk(ctx, hctx, virtualWF)
	if err != nil {
		return Result{}, err
	}

	produced := map[string]interface{}{"cognitive_output": output}

	return Result{
		Output:      MergeOutput(hctx.Input, produced),
		NextNodeIDs: allNextNodes(wf, node.ID),
		ToolCalls:   toolCalls,
	}, nil
}

// walk traverses virtualWF breadth-first starting at its single start
// node, dispatching each node inline via h.Dispatcher, until an end
// node executes. It returns that end node's output and every tool call
// recorded along the way (the outer ledger entry's tool_calls field).
func (h CognitiveHandler) walk(ctx context.Context, hctx Context, virtualWF *model.Workflow) (map[string]interface{}, []model.ToolCall, error) {
	var start *model.Node
	for i := range virtualWF.Nodes {
		if virtualWF.Nodes[i].Type == model.NodeStart {
			start = &virtualWF.Nodes[i]
			break
		}
	}
	if start == nil {
		return nil, nil, NewFail("cognitive graph has no start node", nil)
	}

	type job struct {
		nodeID string
		input  map[string]interface{}
	}

	queue := []job{{nodeID: start.ID, input: hctx.Input}}
	var toolCalls []model.ToolCall

	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]

		n, ok := virtualWF.NodeByID(j.nodeID)
		if !ok {
			return nil, nil, NewFail(fmt.Sprintf("cognitive graph references unknown node %s", j.nodeID), nil)
		}

		stepCtx := Context{Input: j.input, WorkflowID: hctx.WorkflowID, RunID: hctx.RunID, NodeID: n.ID}
		res, err := h.Dispatcher.Dispatch(ctx, stepCtx, *n, virtualWF)
		if err != nil {
			var suspend *Suspend
			if errors.As(err, &suspend) {
				return nil, nil, NewFail("cognitive graph suspended on user_approval, which is not supported inside a virtual workflow", err)
			}
			return nil, nil, err
		}

		toolCalls = append(toolCalls, res.ToolCalls...)

		if n.Type == model.NodeEnd {
			return res.Output, toolCalls, nil
		}

		for _, next := range res.NextNodeIDs {
			queue = append(queue, job{nodeID: next, input: res.Output})
		}
	}

	return nil, toolCalls, NewFail("cognitive graph never reached an end node", nil)
}

func joinValidationErrors(r validate.Result) error {
	msg := ""
	for i, e := range r.Errors {
		if i > 0 {
			msg += "; "
		}
		msg += e.Message
	}
	return errors.New(msg)
}
