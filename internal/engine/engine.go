// Package engine implements the worker loop of §4.1: dequeue one job
// at a time, dispatch to a node handler, persist the ledger row, and
// publish lifecycle events. Grounded on the teacher's coordinator and
// stream-worker processes, collapsed from a choreography of several
// specialized workers into the spec's single synchronous per-job loop.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/eventbus"
	"github.com/lyzr/flowengine/internal/handlers"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/queue"
	"github.com/lyzr/flowengine/internal/store"
)

// Engine runs the worker loop against one Queue, dispatching jobs
// through registry and persisting state through the given stores.
type Engine struct {
	Queue       queue.Queue
	Registry    *handlers.Registry
	Workflows   store.WorkflowStore
	Runs        store.RunStore
	Ledger      store.LedgerStore
	Approvals   store.ApprovalStore
	Bus         eventbus.EventBus
	Log         *logger.Logger
	NodeTimeout time.Duration
}

// Run processes jobs until ctx is cancelled. It is intended to be
// invoked once per worker goroutine in a pool (§5's WorkerPoolSize).
func (e *Engine) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, ack, err := e.Queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			e.Log.Error("dequeue failed", "error", err)
			continue
		}

		if err := e.processJob(ctx, job); err != nil {
			e.Log.Error("job processing failed", "run_id", job.RunID, "node_id", job.NodeID, "error", err)
		}

		if ackErr := ack(ctx); ackErr != nil {
			e.Log.Error("ack failed", "run_id", job.RunID, "node_id", job.NodeID, "error", ackErr)
		}
	}
}

// processJob executes the 7 steps of §4.1 for a single job.
func (e *Engine) processJob(ctx context.Context, job queue.Job) error {
	run, err := e.Runs.Get(ctx, job.RunID)
	if err != nil {
		return err
	}

	wf, err := e.Workflows.Get(ctx, run.WorkflowID)
	if err != nil {
		return err
	}

	node, ok := wf.NodeByID(job.NodeID)
	if !ok {
		return e.failRun(ctx, run, job.NodeID, "node not found in workflow graph")
	}

	sequence, err := e.Ledger.NextSequence(ctx, job.RunID)
	if err != nil {
		return err
	}

	entry := &model.LedgerEntry{
		ID:        uuid.New(),
		RunID:     job.RunID,
		NodeID:    node.ID,
		NodeType:  node.Type,
		Sequence:  sequence,
		Input:     job.Input,
		StartedAt: time.Now(),
	}
	if err := e.Ledger.Append(ctx, entry); err != nil {
		return err
	}

	e.publish(ctx, eventbus.KindNodeStarted, run.WorkflowID, map[string]interface{}{
		"run_id": job.RunID, "node_id": node.ID, "node_type": node.Type,
		"input_data": job.Input, "timestamp": entry.StartedAt,
	})

	nodeCtx := ctx
	var cancel context.CancelFunc
	if e.NodeTimeout > 0 {
		nodeCtx, cancel = context.WithTimeout(ctx, e.NodeTimeout)
		defer cancel()
	}

	hctx := handlers.Context{Input: job.Input, WorkflowID: run.WorkflowID, RunID: job.RunID, NodeID: node.ID}
	result, handleErr := e.Registry.Dispatch(nodeCtx, hctx, *node, wf)

	if handleErr == nil && nodeCtx.Err() != nil {
		handleErr = handlers.NewFail("timeout", nodeCtx.Err())
	}
	if errors.Is(handleErr, context.DeadlineExceeded) {
		handleErr = handlers.NewFail("timeout", handleErr)
	}

	var suspend *handlers.Suspend
	var fail *handlers.Fail

	switch {
	case handleErr == nil:
		return e.onSuccess(ctx, run, wf, node, entry, result)
	case errors.As(handleErr, &suspend):
		return e.onSuspend(ctx, run, node, entry, job.Input, suspend)
	case errors.As(handleErr, &fail):
		return e.onFail(ctx, run, node, entry, fail)
	default:
		return e.onFail(ctx, run, node, entry, handlers.NewFail("handler returned unrecognized error", handleErr))
	}
}

// onSuccess implements §4.1 step 5.
func (e *Engine) onSuccess(ctx context.Context, run *model.Run, wf *model.Workflow, node *model.Node, entry *model.LedgerEntry, result handlers.Result) error {
	if err := e.Ledger.Finish(ctx, entry.ID, result.Output, result.ToolCalls, ""); err != nil {
		return err
	}

	finishedAt := time.Now()
	e.publish(ctx, eventbus.KindNodeCompleted, run.WorkflowID, map[string]interface{}{
		"run_id": run.ID, "node_id": node.ID, "node_type": node.Type,
		"output_data": result.Output, "duration": finishedAt.Sub(entry.StartedAt).String(),
		"timestamp": finishedAt,
	})

	for _, nextID := range result.NextNodeIDs {
		if err := e.Queue.Enqueue(ctx, queue.Job{RunID: run.ID, NodeID: nextID, Input: result.Output}); err != nil {
			return err
		}
	}

	if node.Type == model.NodeEnd {
		return e.completeRun(ctx, run, result.Output)
	}
	if len(result.NextNodeIDs) == 0 {
		// A dead-end branch with no successors and no end node (e.g. an
		// if_else missing its false edge, §8 scenario S3) still leaves
		// the run with nothing left to do; mark it completed without a
		// run_completed event, since no end node's final_output exists.
		return e.completeRunSilently(ctx, run)
	}
	return nil
}

// completeRunSilently transitions a run to completed without
// publishing run_completed, for branches that dead-end without
// reaching an end node (§8 S3).
func (e *Engine) completeRunSilently(ctx context.Context, run *model.Run) error {
	current, err := e.Runs.Get(ctx, run.ID)
	if err != nil {
		return err
	}
	if current.Status == model.RunCompleted || current.Status == model.RunFailed {
		return nil
	}
	return e.Runs.Finish(ctx, run.ID, model.RunCompleted)
}

// completeRun implements DESIGN.md's Open Question 3 decision: publish
// run_completed for every end node reached, but only transition
// Run.Status to completed on the first such arrival.
func (e *Engine) completeRun(ctx context.Context, run *model.Run, finalOutput map[string]interface{}) error {
	e.publish(ctx, eventbus.KindRunCompleted, run.WorkflowID, map[string]interface{}{
		"run_id": run.ID, "workflow_id": run.WorkflowID, "final_output": finalOutput, "timestamp": time.Now(),
	})

	current, err := e.Runs.Get(ctx, run.ID)
	if err != nil {
		return err
	}
	if current.Status == model.RunCompleted || current.Status == model.RunFailed {
		return nil
	}
	return e.Runs.Finish(ctx, run.ID, model.RunCompleted)
}

// onSuspend implements §4.1 step 6 / §4.8's suspend path.
func (e *Engine) onSuspend(ctx context.Context, run *model.Run, node *model.Node, entry *model.LedgerEntry, pendingInput map[string]interface{}, suspend *handlers.Suspend) error {
	if err := e.Ledger.Finish(ctx, entry.ID, nil, nil, ""); err != nil {
		return err
	}
	// Finish stamps finished_at; a suspended row's "not yet resumed"
	// state is instead tracked by the presence of an ApprovalRequest,
	// so a suspended row has a nil output while its run has a live
	// ApprovalRequest row.

	if err := e.Runs.UpdateStatus(ctx, run.ID, model.RunAwaitingApproval); err != nil {
		return err
	}

	req := &model.ApprovalRequest{
		RunID:        run.ID,
		NodeID:       node.ID,
		Message:      suspend.Message,
		PendingInput: pendingInput,
		CreatedAt:    time.Now(),
	}
	if err := e.Approvals.Create(ctx, req); err != nil {
		return err
	}

	e.publish(ctx, eventbus.KindApprovalNeeded, run.WorkflowID, map[string]interface{}{
		"run_id": run.ID, "node_id": node.ID, "message": suspend.Message, "timestamp": req.CreatedAt,
	})
	return nil
}

// onFail implements §4.1 step 7.
func (e *Engine) onFail(ctx context.Context, run *model.Run, node *model.Node, entry *model.LedgerEntry, fail *handlers.Fail) error {
	if err := e.Ledger.Finish(ctx, entry.ID, nil, nil, fail.Error()); err != nil {
		return err
	}
	return e.finishFailedRun(ctx, run, node.ID, fail.Error())
}

// failRun handles structural failures discovered before a ledger
// entry could be created (e.g. a dangling successor id).
func (e *Engine) failRun(ctx context.Context, run *model.Run, nodeID, reason string) error {
	return e.finishFailedRun(ctx, run, nodeID, reason)
}

func (e *Engine) finishFailedRun(ctx context.Context, run *model.Run, nodeID, message string) error {
	now := time.Now()
	e.publish(ctx, eventbus.KindNodeError, run.WorkflowID, map[string]interface{}{
		"run_id": run.ID, "node_id": nodeID, "message": message, "timestamp": now,
	})
	e.publish(ctx, eventbus.KindRunFailed, run.WorkflowID, map[string]interface{}{
		"run_id": run.ID, "workflow_id": run.WorkflowID, "error": message, "timestamp": now,
	})
	return e.Runs.Finish(ctx, run.ID, model.RunFailed)
}

func (e *Engine) publish(ctx context.Context, kind eventbus.Kind, workflowID uuid.UUID, payload map[string]interface{}) {
	if e.Bus == nil {
		return
	}
	if err := e.Bus.Publish(ctx, eventbus.NewEvent(kind, workflowID, payload)); err != nil {
		e.Log.Warn("event publish failed", "kind", kind, "error", err)
	}
}
