package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lyzr/flowengine/internal/condition"
	"github.com/lyzr/flowengine/internal/llm"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/resolver"
)

const guardrailMetaPrompt = `You are a policy judge. Given the JSON context below and a policy` +
	` statement, decide whether the context satisfies the policy. Respond` +
	` with ONLY a JSON object: {"pass": <bool>, "reason": "<short reason>"}.`

// guardrailVerdict is the JSON shape the LLM judge must return.
type guardrailVerdict struct {
	Pass   bool   `json:"pass"`
	Reason string `json:"reason"`
}

// GuardrailsHandler implements §4.4.5: ask an LLM to judge whether the
// input satisfies a policy, with an optional deterministic CEL
// pre-filter (guardrail_expr) that can short-circuit a definite fail
// without spending an LLM call.
type GuardrailsHandler struct {
	LLM   llm.Client
	Model string
	CEL   *condition.CELEvaluator
}

// Handle resolves the policy text, judges it, and routes to "pass" or "fail".
func (h GuardrailsHandler) Handle(ctx context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	policyTpl, err := configString(node.Config, "guardrail")
	if err != nil {
		return Result{}, NewFail("guardrails config error", err)
	}
	policy := resolver.Resolve(policyTpl, hctx.Input)

	if expr := configStringOptional(node.Config, "guardrail_expr"); expr != "" && h.CEL != nil {
		ok, err := h.CEL.Eval(expr, hctx.Input)
		if err != nil {
			return Result{}, NewFail("guardrail pre-filter error", err)
		}
		if !ok {
			return h.result(hctx, wf, node.ID, guardrailVerdict{Pass: false, Reason: "deterministic pre-filter rejected input"})
		}
	}

	inputJSON, err := json.Marshal(hctx.Input)
	if err != nil {
		return Result{}, NewFail("guardrails input marshal error", err)
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: guardrailMetaPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Policy: %s\n\nContext: %s", policy, string(inputJSON))},
	}

	resp, err := h.LLM.Complete(ctx, h.Model, messages, nil)
	if err != nil {
		return Result{}, NewFail("guardrail LLM call failed", err)
	}

	var verdict guardrailVerdict
	if err := json.Unmarshal([]byte(resp.Text), &verdict); err != nil {
		return Result{}, NewFail("guardrail verdict parse failure", err)
	}

	return h.result(hctx, wf, node.ID, verdict)
}

func (GuardrailsHandler) result(hctx Context, wf *model.Workflow, nodeID string, v guardrailVerdict) (Result, error) {
	produced := map[string]interface{}{
		"guardrail_pass":   v.Pass,
		"guardrail_reason": v.Reason,
	}

	branch := "fail"
	if v.Pass {
		branch = "pass"
	}

	return Result{
		Output:      MergeOutput(hctx.Input, produced),
		NextNodeIDs: nodesByHandle(wf, nodeID, branch),
	}, nil
}
