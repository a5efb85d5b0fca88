package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/flowengine/internal/llm"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/resolver"
)

// ToolCatalog loads tool definitions by id for presentation to the LLM.
type ToolCatalog interface {
	Lookup(toolID string) (llm.ToolSpec, error)
}

// AgentHandler implements §4.4.3: resolve prompts, run the LLM/tool
// loop up to MaxToolLoop iterations, optionally parse structured
// output, and merge the result into the context.
type AgentHandler struct {
	LLM         llm.Client
	Tools       ToolCatalog
	Executor    llm.ToolExecutor
	MaxToolLoop int
}

// Handle resolves prompts, drives the tool-call loop, and merges the result.
func (h AgentHandler) Handle(ctx context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	model_, err := configString(node.Config, "llm_model")
	if err != nil {
		return Result{}, NewFail("agent config error", err)
	}
	systemTpl, err := configString(node.Config, "system_prompt")
	if err != nil {
		return Result{}, NewFail("agent config error", err)
	}
	userTpl, err := configString(node.Config, "user_prompt")
	if err != nil {
		return Result{}, NewFail("agent config error", err)
	}

	systemPrompt := resolver.Resolve(systemTpl, hctx.Input)
	userPrompt := resolver.Resolve(userTpl, hctx.Input)

	toolIDs := configStringSlice(node.Config["tools"])
	tools, err := h.loadTools(toolIDs)
	if err != nil {
		return Result{}, NewFail("agent tool load error", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: userPrompt},
	}

	maxLoop := h.MaxToolLoop
	if maxLoop <= 0 {
		maxLoop = 8
	}

	var recordedCalls []model.ToolCall
	var finalText string

	for i := 0; i < maxLoop; i++ {
		resp, err := h.LLM.Complete(ctx, model_, messages, tools)
		if err != nil {
			return Result{}, NewFail("agent LLM call failed", err)
		}

		if !resp.HasToolCalls() {
			finalText = resp.Text
			break
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Text})

		for _, call := range resp.ToolCalls {
			result, execErr := h.Executor.Execute(ctx, call.ToolID, call.Arguments)
			record := model.ToolCall{ToolID: call.ToolID, Arguments: call.Arguments}
			if execErr != nil {
				record.Error = execErr.Error()
			} else {
				var v interface{}
				_ = json.Unmarshal(result, &v)
				record.Result = v
			}
			recordedCalls = append(recordedCalls, record)

			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    string(result),
				ToolCallID: call.ID,
				Name:       call.ToolID,
			})
		}

		if i == maxLoop-1 {
			return Result{}, NewFail("tool_call_limit_exceeded", nil)
		}
	}

	produced := map[string]interface{}{
		"message":    finalText,
		"tool_calls": recordedCalls,
	}

	if configBool(node.Config, "structured_output") {
		schema, _ := node.Config["structured_output_schema"].(map[string]interface{})
		structured, err := parseStructured(finalText, schema)
		if err != nil {
			return Result{}, NewFail("structured_output parse failure", err)
		}
		produced["structured"] = structured
	}

	return Result{
		Output:      MergeOutput(hctx.Input, produced),
		NextNodeIDs: allNextNodes(wf, node.ID),
		ToolCalls:   recordedCalls,
	}, nil
}

func (h AgentHandler) loadTools(toolIDs []string) ([]llm.ToolSpec, error) {
	if len(toolIDs) == 0 || h.Tools == nil {
		return nil, nil
	}
	specs := make([]llm.ToolSpec, 0, len(toolIDs))
	for _, id := range toolIDs {
		spec, err := h.Tools.Lookup(id)
		if err != nil {
			return nil, fmt.Errorf("load tool %s: %w", id, err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseStructured parses text as JSON. Schema validation against
// structured_output_schema is left to the caller's JSON Schema library
// of choice; this engine only enforces "is it valid JSON" (§4.4.3 step 4).
func parseStructured(text string, _ map[string]interface{}) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func configStringSlice(v interface{}) []string {
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
