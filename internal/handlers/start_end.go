package handlers

import (
	"context"

	"github.com/lyzr/flowengine/internal/model"
)

// StartHandler implements §4.4.1: pass input through unchanged, fan out
// to the single outgoing edge graph validation guarantees.
type StartHandler struct{}

// Handle passes input through unchanged.
func (StartHandler) Handle(_ context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	return Result{
		Output:      hctx.Input,
		NextNodeIDs: allNextNodes(wf, node.ID),
	}, nil
}

// EndHandler implements §4.4.2: pass input through unchanged and signal
// run completion by returning no successors.
type EndHandler struct{}

// Handle passes input through unchanged and terminates this path.
func (EndHandler) Handle(_ context.Context, hctx Context, _ model.Node, _ *model.Workflow) (Result, error) {
	return Result{
		Output:      hctx.Input,
		NextNodeIDs: nil,
	}, nil
}
