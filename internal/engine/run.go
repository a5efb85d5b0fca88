package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/eventbus"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/queue"
	"github.com/lyzr/flowengine/internal/store"
)

// ErrAlreadyResumed is returned by ResumeApproval when no
// ApprovalRequest exists for the given (run_id, node_id) — either it
// was never suspended there, or a prior resume already consumed it
// (§4.8's idempotency rule).
var ErrAlreadyResumed = errors.New("engine: approval already resumed")

// StartRun creates a new Run, records it, publishes run_started, and
// enqueues the workflow's start node (§6's execute entry point).
func (e *Engine) StartRun(ctx context.Context, workflowID uuid.UUID, initialInput map[string]interface{}) (*model.Run, error) {
	wf, err := e.Workflows.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow: %w", err)
	}

	var start *model.Node
	for i := range wf.Nodes {
		if wf.Nodes[i].Type == model.NodeStart {
			start = &wf.Nodes[i]
			break
		}
	}
	if start == nil {
		return nil, fmt.Errorf("workflow %s has no start node", workflowID)
	}

	run := &model.Run{
		ID:           uuid.New(),
		WorkflowID:   workflowID,
		Status:       model.RunRunning,
		InitialInput: initialInput,
		CreatedAt:    time.Now(),
	}
	if err := e.Runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	e.publish(ctx, eventbus.KindRunStarted, workflowID, map[string]interface{}{
		"run_id": run.ID, "workflow_id": workflowID, "initial_input": initialInput, "timestamp": run.CreatedAt,
	})

	if err := e.Queue.Enqueue(ctx, queue.Job{RunID: run.ID, NodeID: start.ID, Input: initialInput}); err != nil {
		return nil, fmt.Errorf("enqueue start node: %w", err)
	}

	return run, nil
}

// ResumeApproval implements §4.8's resume path: validate the pending
// ApprovalRequest, delete it, restore the run to running, and enqueue
// a fresh job for the same user_approval node with the decision
// folded into its input.
func (e *Engine) ResumeApproval(ctx context.Context, runID uuid.UUID, nodeID, decision, message string) error {
	req, err := e.Approvals.Get(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrAlreadyResumed
	}
	if err != nil {
		return fmt.Errorf("load approval request: %w", err)
	}
	if req.NodeID != nodeID {
		return fmt.Errorf("%w: approval request is pending on node %s, not %s", ErrAlreadyResumed, req.NodeID, nodeID)
	}

	if err := e.Approvals.Delete(ctx, runID); err != nil {
		return fmt.Errorf("delete approval request: %w", err)
	}
	if err := e.Runs.UpdateStatus(ctx, runID, model.RunRunning); err != nil {
		return fmt.Errorf("restore run to running: %w", err)
	}

	resumedInput := make(map[string]interface{}, len(req.PendingInput)+2)
	for k, v := range req.PendingInput {
		resumedInput[k] = v
	}
	resumedInput["approval_decision"] = decision
	resumedInput["approval_message"] = message

	return e.Queue.Enqueue(ctx, queue.Job{RunID: runID, NodeID: nodeID, Input: resumedInput})
}
