package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RunLifecycle(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	run := &model.Run{ID: uuid.New(), WorkflowID: uuid.New(), Status: model.RunRunning}

	require.NoError(t, ms.Runs().Create(ctx, run))

	got, err := ms.Runs().Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, got.Status)

	require.NoError(t, ms.Runs().UpdateStatus(ctx, run.ID, model.RunAwaitingApproval))
	got, _ = ms.Runs().Get(ctx, run.ID)
	assert.Equal(t, model.RunAwaitingApproval, got.Status)

	require.NoError(t, ms.Runs().Finish(ctx, run.ID, model.RunCompleted))
	got, _ = ms.Runs().Get(ctx, run.ID)
	assert.Equal(t, model.RunCompleted, got.Status)
	assert.NotNil(t, got.FinishedAt)
}

func TestMemoryStore_RunGetNotFound(t *testing.T) {
	ms := NewMemoryStore()
	_, err := ms.Runs().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_LedgerSequenceIsMonotonicPerRun(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	runID := uuid.New()

	seq1, err := ms.Ledger().NextSequence(ctx, runID)
	require.NoError(t, err)
	seq2, err := ms.Ledger().NextSequence(ctx, runID)
	require.NoError(t, err)

	assert.Equal(t, int64(1), seq1)
	assert.Equal(t, int64(2), seq2)
}

func TestMemoryStore_LedgerAppendAndFinish(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	runID := uuid.New()
	entry := &model.LedgerEntry{ID: uuid.New(), RunID: runID, NodeID: "n1", Sequence: 1}

	require.NoError(t, ms.Ledger().Append(ctx, entry))
	require.NoError(t, ms.Ledger().Finish(ctx, entry.ID, map[string]interface{}{"ok": true}, nil, ""))

	entries, err := ms.Ledger().ListByRun(ctx, runID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, true, entries[0].Output["ok"])
	assert.NotNil(t, entries[0].FinishedAt)
	assert.NotNil(t, entries[0].DurationMS)
}

func TestMemoryStore_OrphansExcludesRunningRuns(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()

	runningRun := &model.Run{ID: uuid.New(), Status: model.RunRunning}
	failedRun := &model.Run{ID: uuid.New(), Status: model.RunFailed}
	require.NoError(t, ms.Runs().Create(ctx, runningRun))
	require.NoError(t, ms.Runs().Create(ctx, failedRun))

	unfinishedInRunning := &model.LedgerEntry{ID: uuid.New(), RunID: runningRun.ID, NodeID: "a"}
	unfinishedInFailed := &model.LedgerEntry{ID: uuid.New(), RunID: failedRun.ID, NodeID: "b"}
	require.NoError(t, ms.Ledger().Append(ctx, unfinishedInRunning))
	require.NoError(t, ms.Ledger().Append(ctx, unfinishedInFailed))

	orphans, err := ms.Ledger().Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, failedRun.ID, orphans[0].RunID)
}

func TestMemoryStore_ApprovalCreateGetDelete(t *testing.T) {
	ms := NewMemoryStore()
	ctx := context.Background()
	runID := uuid.New()
	req := &model.ApprovalRequest{RunID: runID, NodeID: "approve", Message: "ok?"}

	require.NoError(t, ms.Approvals().Create(ctx, req))

	got, err := ms.Approvals().Get(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "ok?", got.Message)

	require.NoError(t, ms.Approvals().Delete(ctx, runID))
	_, err = ms.Approvals().Get(ctx, runID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_WorkflowPutAndGet(t *testing.T) {
	ms := NewMemoryStore()
	wf := &model.Workflow{ID: uuid.New(), Owner: "alice", Name: "demo"}
	ms.PutWorkflow(wf)

	got, err := ms.Workflows().Get(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Owner)
}
