package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/model"
)

// memoryData is the shared state backing the three in-memory store
// adapters below. It is split from them because RunStore and
// ApprovalStore both declare a Create method with different
// signatures, which a single receiver type cannot implement at once.
type memoryData struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*model.Run
	ledger    map[uuid.UUID][]*model.LedgerEntry
	sequences map[uuid.UUID]int64
	approvals map[uuid.UUID]*model.ApprovalRequest
	workflows map[uuid.UUID]*model.Workflow
}

func newMemoryData() *memoryData {
	return &memoryData{
		runs:      make(map[uuid.UUID]*model.Run),
		ledger:    make(map[uuid.UUID][]*model.LedgerEntry),
		sequences: make(map[uuid.UUID]int64),
		approvals: make(map[uuid.UUID]*model.ApprovalRequest),
		workflows: make(map[uuid.UUID]*model.Workflow),
	}
}

// MemoryStore bundles the three in-process store adapters for tests
// and the single-process development entrypoint; it shares one
// underlying map set so a run created via Runs() is visible to
// Ledger() and Approvals().
type MemoryStore struct {
	data     *memoryData
	runs     *memoryRunStore
	ledger   *memoryLedgerStore
	approval *memoryApprovalStore
	workflow *memoryWorkflowStore
}

// NewMemoryStore creates an empty, linked set of in-memory stores.
func NewMemoryStore() *MemoryStore {
	data := newMemoryData()
	return &MemoryStore{
		data:     data,
		runs:     &memoryRunStore{data},
		ledger:   &memoryLedgerStore{data},
		approval: &memoryApprovalStore{data},
		workflow: &memoryWorkflowStore{data},
	}
}

func (s *MemoryStore) Runs() RunStore           { return s.runs }
func (s *MemoryStore) Ledger() LedgerStore      { return s.ledger }
func (s *MemoryStore) Approvals() ApprovalStore { return s.approval }
func (s *MemoryStore) Workflows() WorkflowStore { return s.workflow }

// PutWorkflow seeds a workflow definition for tests/dev; real
// deployments populate this table out of band (workflow authoring is
// out of the engine's scope).
func (s *MemoryStore) PutWorkflow(wf *model.Workflow) {
	s.data.mu.Lock()
	defer s.data.mu.Unlock()
	cp := *wf
	s.data.workflows[wf.ID] = &cp
}

type memoryWorkflowStore struct{ d *memoryData }

func (s *memoryWorkflowStore) Get(ctx context.Context, workflowID uuid.UUID) (*model.Workflow, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	wf, ok := s.d.workflows[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *wf
	return &cp, nil
}

type memoryRunStore struct{ d *memoryData }

// Create stores a copy of run.
func (s *memoryRunStore) Create(ctx context.Context, run *model.Run) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *run
	s.d.runs[run.ID] = &cp
	return nil
}

// Get returns the stored run for runID.
func (s *memoryRunStore) Get(ctx context.Context, runID uuid.UUID) (*model.Run, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	run, ok := s.d.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// UpdateStatus sets run's status in place.
func (s *memoryRunStore) UpdateStatus(ctx context.Context, runID uuid.UUID, status model.RunStatus) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	run, ok := s.d.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	return nil
}

// Finish sets status and FinishedAt.
func (s *memoryRunStore) Finish(ctx context.Context, runID uuid.UUID, status model.RunStatus) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	run, ok := s.d.runs[runID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	return nil
}

// ListByWorkflow returns runs for workflowID, newest first.
func (s *memoryRunStore) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit, offset int) ([]*model.Run, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	var matched []*model.Run
	for _, run := range s.d.runs {
		if run.WorkflowID == workflowID {
			cp := *run
			matched = append(matched, &cp)
		}
	}
	sortRunsDesc(matched)

	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func sortRunsDesc(runs []*model.Run) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].CreatedAt.After(runs[j-1].CreatedAt); j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
}

type memoryLedgerStore struct{ d *memoryData }

// NextSequence returns a monotonically increasing per-run counter
// starting at 1 (§5's per-run sequence invariant).
func (s *memoryLedgerStore) NextSequence(ctx context.Context, runID uuid.UUID) (int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.sequences[runID]++
	return s.d.sequences[runID], nil
}

// Append adds a copy of entry to runID's ledger.
func (s *memoryLedgerStore) Append(ctx context.Context, entry *model.LedgerEntry) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *entry
	s.d.ledger[entry.RunID] = append(s.d.ledger[entry.RunID], &cp)
	return nil
}

// Finish records the terminal output/tool_calls/error for entryID.
func (s *memoryLedgerStore) Finish(ctx context.Context, entryID uuid.UUID, output map[string]interface{}, toolCalls []model.ToolCall, errMsg string) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, entries := range s.d.ledger {
		for _, e := range entries {
			if e.ID == entryID {
				now := time.Now()
				e.Output = output
				e.ToolCalls = toolCalls
				e.Error = errMsg
				e.FinishedAt = &now
				durationMS := now.Sub(e.StartedAt).Milliseconds()
				e.DurationMS = &durationMS
				return nil
			}
		}
	}
	return ErrNotFound
}

// ListByRun returns runID's ledger entries in sequence order.
func (s *memoryLedgerStore) ListByRun(ctx context.Context, runID uuid.UUID) ([]*model.LedgerEntry, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	entries := s.d.ledger[runID]
	out := make([]*model.LedgerEntry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// Orphans returns ledger rows with no FinishedAt whose parent run has
// already left the running/awaiting_approval state (SPEC_FULL §12).
func (s *memoryLedgerStore) Orphans(ctx context.Context) ([]*model.LedgerEntry, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	var out []*model.LedgerEntry
	for runID, entries := range s.d.ledger {
		run, ok := s.d.runs[runID]
		if !ok {
			continue
		}
		if run.Status == model.RunRunning || run.Status == model.RunAwaitingApproval {
			continue
		}
		for _, e := range entries {
			if e.FinishedAt == nil {
				cp := *e
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

type memoryApprovalStore struct{ d *memoryData }

// Create stores a copy of req, replacing any existing pending
// approval for the same run (§4.8 allows at most one at a time).
func (s *memoryApprovalStore) Create(ctx context.Context, req *model.ApprovalRequest) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	cp := *req
	s.d.approvals[req.RunID] = &cp
	return nil
}

// Get returns the pending approval for runID.
func (s *memoryApprovalStore) Get(ctx context.Context, runID uuid.UUID) (*model.ApprovalRequest, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	req, ok := s.d.approvals[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// Delete clears the pending approval for runID (called on resume).
func (s *memoryApprovalStore) Delete(ctx context.Context, runID uuid.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	delete(s.d.approvals, runID)
	return nil
}
