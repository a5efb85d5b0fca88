// Package store persists runs, ledger entries, and approval requests.
// It records node executions; it does not replay or resume runs from
// the ledger, and a redelivered job is executed again as a new row.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/model"
)

// ErrNotFound is returned by Get-style lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// RunStore persists Run rows.
type RunStore interface {
	Create(ctx context.Context, run *model.Run) error
	Get(ctx context.Context, runID uuid.UUID) (*model.Run, error)
	UpdateStatus(ctx context.Context, runID uuid.UUID, status model.RunStatus) error
	Finish(ctx context.Context, runID uuid.UUID, status model.RunStatus) error
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*model.Run, error)
}

// LedgerStore persists append-only LedgerEntry rows (§5).
type LedgerStore interface {
	Append(ctx context.Context, entry *model.LedgerEntry) error
	Finish(ctx context.Context, entryID uuid.UUID, output map[string]interface{}, toolCalls []model.ToolCall, errMsg string) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*model.LedgerEntry, error)
	NextSequence(ctx context.Context, runID uuid.UUID) (int64, error)
	// Orphans returns ledger rows with no Finish recorded whose parent
	// run is no longer running (SPEC_FULL §12's orphan-row detection).
	Orphans(ctx context.Context) ([]*model.LedgerEntry, error)
}

// ApprovalStore persists the single pending ApprovalRequest for a
// run (at most one per run at a time, per §4.8).
type ApprovalStore interface {
	Create(ctx context.Context, req *model.ApprovalRequest) error
	Get(ctx context.Context, runID uuid.UUID) (*model.ApprovalRequest, error)
	Delete(ctx context.Context, runID uuid.UUID) error
}

// WorkflowStore resolves a workflow id to its current graph
// definition. Nodes are fetched fresh at dequeue time rather than
// cached on the Run, so an in-flight run picks up graph edits made
// after it started (DESIGN.md's Open Question 2 decision). Workflow
// authoring (create/update) is out of this engine's scope (§Non-goals);
// this interface only reads.
type WorkflowStore interface {
	Get(ctx context.Context, workflowID uuid.UUID) (*model.Workflow, error)
}
