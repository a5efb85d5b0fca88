package handlers

import (
	"context"

	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/resolver"
)

// UserApprovalHandler implements §4.4.7. On first entry it resolves the
// message and signals Suspend; the resume entry point (§4.8) re-enters
// this node with approval_decision already present in the input, at
// which point it records the decision and routes to "yes"/"no".
type UserApprovalHandler struct{}

// Handle suspends on first entry, or records the resumed decision and
// routes accordingly on re-entry.
func (UserApprovalHandler) Handle(_ context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	if decision, ok := hctx.Input["approval_decision"]; ok {
		decisionStr, _ := decision.(string)
		message, _ := hctx.Input["approval_message"].(string)

		produced := map[string]interface{}{
			"approval_decision": decisionStr,
			"approval_message":  message,
		}

		branch := "no"
		if decisionStr == "yes" {
			branch = "yes"
		}

		return Result{
			Output:      MergeOutput(hctx.Input, produced),
			NextNodeIDs: nodesByHandle(wf, node.ID, branch),
		}, nil
	}

	messageTpl, err := configString(node.Config, "message")
	if err != nil {
		return Result{}, NewFail("user_approval config error", err)
	}
	message := resolver.Resolve(messageTpl, hctx.Input)

	return Result{}, &Suspend{Message: message}
}
