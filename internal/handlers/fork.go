package handlers

import (
	"context"

	"github.com/lyzr/flowengine/internal/model"
)

// ForkHandler implements §4.4.6: pass input through unchanged, fanning
// out to every outgoing edge as independent jobs sharing the same
// input. The engine does not join forked branches (§9).
type ForkHandler struct{}

// Handle fans out to every outgoing edge with the same input.
func (ForkHandler) Handle(_ context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	return Result{
		Output:      hctx.Input,
		NextNodeIDs: allNextNodes(wf, node.ID),
	}, nil
}
