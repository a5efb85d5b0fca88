package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/eventbus"
	"github.com/lyzr/flowengine/internal/handlers"
	"github.com/lyzr/flowengine/internal/llm"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/lyzr/flowengine/internal/model"
	"github.com/lyzr/flowengine/internal/queue"
	"github.com/lyzr/flowengine/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, llmClient llm.Client) (*Engine, *store.MemoryStore, *eventbus.LocalBus) {
	t.Helper()
	mem := store.NewMemoryStore()
	log := logger.New("error", "text")

	reg := handlers.NewRegistry()
	reg.Register(model.NodeStart, handlers.StartHandler{})
	reg.Register(model.NodeEnd, handlers.EndHandler{})
	reg.Register(model.NodeIfElse, handlers.IfElseHandler{})
	reg.Register(model.NodeFork, handlers.ForkHandler{})
	reg.Register(model.NodeUserApproval, handlers.UserApprovalHandler{})
	reg.Register(model.NodeAgent, handlers.AgentHandler{
		LLM: llmClient, Tools: handlers.NoToolsCatalog{}, Executor: handlers.UnimplementedToolExecutor{}, MaxToolLoop: 8,
	})

	bus := eventbus.NewLocalBus(log)

	e := &Engine{
		Queue:     queue.NewMemoryQueue(log, 100),
		Registry:  reg,
		Workflows: mem.Workflows(),
		Runs:      mem.Runs(),
		Ledger:    mem.Ledger(),
		Approvals: mem.Approvals(),
		Bus:       bus,
		Log:       log,
	}
	return e, mem, bus
}

// drain processes jobs off the queue until it sits idle for idleFor,
// simulating a worker pool draining a finite run without requiring a
// background goroutine in the test.
func drain(t *testing.T, e *Engine, idleFor time.Duration) {
	t.Helper()
	for {
		ctx, cancel := context.WithTimeout(context.Background(), idleFor)
		job, ack, err := e.Queue.Dequeue(ctx)
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return
		}
		require.NoError(t, err)
		require.NoError(t, e.processJob(context.Background(), job))
		require.NoError(t, ack(context.Background()))
	}
}

func TestEngine_S1_LinearAgentic(t *testing.T) {
	e, mem, bus := newTestEngine(t, llm.EchoClient{})
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "agent", Type: model.NodeAgent, Config: map[string]interface{}{
				"system_prompt": "Greet {{input.name}}", "user_prompt": "hi", "tools": []interface{}{}, "llm_model": "stub-echo",
			}},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "agent"},
			{SourceNode: "agent", TargetNode: "end"},
		},
	}
	mem.PutWorkflow(wf)

	sub, err := bus.Subscribe(context.Background(), wf.ID)
	require.NoError(t, err)
	defer sub.Close()

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{"name": "Ada"})
	require.NoError(t, err)

	drain(t, e, 50*time.Millisecond)

	entries, err := e.Ledger.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	endEntry := entries[2]
	assert.Equal(t, "Ada", endEntry.Output["name"])
	assert.Contains(t, endEntry.Output, "message")

	got, err := e.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)

	completedCount := 0
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == eventbus.KindRunCompleted {
				completedCount++
			}
		default:
			assert.Equal(t, 1, completedCount, "run_completed must be emitted exactly once")
			return
		}
	}
}

func TestEngine_S2_IfElseTrueBranch(t *testing.T) {
	e, mem, _ := newTestEngine(t, nil)
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "check", Type: model.NodeIfElse, Config: map[string]interface{}{
				"lhs": "{{input.age}}", "condition": ">", "rhs": "18",
			}},
			{ID: "end_true", Type: model.NodeEnd},
			{ID: "end_false", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "check"},
			{SourceNode: "check", TargetNode: "end_true", SourceHandle: "true"},
			{SourceNode: "check", TargetNode: "end_false", SourceHandle: "false"},
		},
	}
	mem.PutWorkflow(wf)

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{"age": 21})
	require.NoError(t, err)

	drain(t, e, 50*time.Millisecond)

	entries, err := e.Ledger.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "end_true", entries[2].NodeID)

	ifElseEntry := entries[1]
	assert.Equal(t, true, ifElseEntry.Output["condition"])
	assert.Equal(t, float64(21), ifElseEntry.Output["lhs_value"])
	assert.Equal(t, float64(18), ifElseEntry.Output["rhs_value"])
}

func TestEngine_S3_IfElseMissingBranchStillCompletes(t *testing.T) {
	e, mem, bus := newTestEngine(t, nil)
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "check", Type: model.NodeIfElse, Config: map[string]interface{}{
				"lhs": "{{input.age}}", "condition": ">", "rhs": "18",
			}},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "check"},
			// no "false" edge at all
		},
	}
	mem.PutWorkflow(wf)

	sub, err := bus.Subscribe(context.Background(), wf.ID)
	require.NoError(t, err)
	defer sub.Close()

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{"age": 5})
	require.NoError(t, err)

	drain(t, e, 50*time.Millisecond)

	entries, err := e.Ledger.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	got, err := e.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)

	for {
		select {
		case evt := <-sub.Events():
			assert.NotEqual(t, eventbus.KindRunCompleted, evt.Kind, "no end node reached, run_completed must not fire")
		default:
			return
		}
	}
}

func TestEngine_S4_ApprovalYesResumesAndCompletes(t *testing.T) {
	e, mem, bus := newTestEngine(t, nil)
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "approve", Type: model.NodeUserApproval, Config: map[string]interface{}{"message": "Proceed?"}},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "approve"},
			{SourceNode: "approve", TargetNode: "end", SourceHandle: "yes"},
		},
	}
	mem.PutWorkflow(wf)

	sub, err := bus.Subscribe(context.Background(), wf.ID)
	require.NoError(t, err)
	defer sub.Close()

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{"x": 1})
	require.NoError(t, err)

	drain(t, e, 50*time.Millisecond)

	got, err := e.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunAwaitingApproval, got.Status)

	req, err := e.Approvals.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, "approve", req.NodeID)

	sawApprovalNeeded := false
drainEvents:
	for {
		select {
		case evt := <-sub.Events():
			if evt.Kind == eventbus.KindApprovalNeeded {
				sawApprovalNeeded = true
			}
		default:
			break drainEvents
		}
	}
	assert.True(t, sawApprovalNeeded)

	require.NoError(t, e.ResumeApproval(context.Background(), run.ID, "approve", "yes", "looks good"))

	drain(t, e, 50*time.Millisecond)

	entries, err := e.Ledger.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	// start, approve (suspended), approve (resumed), end
	require.Len(t, entries, 4)
	assert.Equal(t, "approve", entries[1].NodeID)
	assert.Nil(t, entries[1].Output)
	assert.Equal(t, "approve", entries[2].NodeID)
	assert.Equal(t, "yes", entries[2].Output["approval_decision"])
	assert.Equal(t, "end", entries[3].NodeID)

	got, err = e.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
}

func TestEngine_ResumeApproval_AlreadyResumedErrors(t *testing.T) {
	e, mem, _ := newTestEngine(t, nil)
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "approve", Type: model.NodeUserApproval, Config: map[string]interface{}{"message": "Proceed?"}},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "approve"},
			{SourceNode: "approve", TargetNode: "end", SourceHandle: "yes"},
		},
	}
	mem.PutWorkflow(wf)

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{})
	require.NoError(t, err)
	drain(t, e, 50*time.Millisecond)

	require.NoError(t, e.ResumeApproval(context.Background(), run.ID, "approve", "yes", ""))
	drain(t, e, 50*time.Millisecond)

	err = e.ResumeApproval(context.Background(), run.ID, "approve", "yes", "")
	assert.ErrorIs(t, err, ErrAlreadyResumed)
}

func TestEngine_S5_ForkFanOut(t *testing.T) {
	e, mem, _ := newTestEngine(t, llm.EchoClient{})
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "fork", Type: model.NodeFork},
			{ID: "agent_a", Type: model.NodeAgent, Config: map[string]interface{}{
				"system_prompt": "s", "user_prompt": "u", "tools": []interface{}{}, "llm_model": "stub-echo",
			}},
			{ID: "agent_b", Type: model.NodeAgent, Config: map[string]interface{}{
				"system_prompt": "s", "user_prompt": "u", "tools": []interface{}{}, "llm_model": "stub-echo",
			}},
			{ID: "end_a", Type: model.NodeEnd},
			{ID: "end_b", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "fork"},
			{SourceNode: "fork", TargetNode: "agent_a"},
			{SourceNode: "fork", TargetNode: "agent_b"},
			{SourceNode: "agent_a", TargetNode: "end_a"},
			{SourceNode: "agent_b", TargetNode: "end_b"},
		},
	}
	mem.PutWorkflow(wf)

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{"q": "?"})
	require.NoError(t, err)

	drain(t, e, 50*time.Millisecond)

	entries, err := e.Ledger.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	// start, fork, agent_a, agent_b, end_a, end_b
	require.Len(t, entries, 6)

	seen := map[string]int{}
	for _, entry := range entries {
		seen[entry.NodeID]++
	}
	assert.Equal(t, 1, seen["agent_a"])
	assert.Equal(t, 1, seen["agent_b"])
	assert.Equal(t, 1, seen["end_a"])
	assert.Equal(t, 1, seen["end_b"])
}

func TestEngine_S6_AgentToolCallLoopCapFails(t *testing.T) {
	e, mem, bus := newTestEngine(t, llm.AlwaysToolCallClient{ToolID: "search"})
	wf := &model.Workflow{
		ID: uuid.New(),
		Nodes: []model.Node{
			{ID: "start", Type: model.NodeStart},
			{ID: "agent", Type: model.NodeAgent, Config: map[string]interface{}{
				"system_prompt": "s", "user_prompt": "u", "tools": []interface{}{}, "llm_model": "stub-loop",
			}},
			{ID: "end", Type: model.NodeEnd},
		},
		Edges: []model.Edge{
			{SourceNode: "start", TargetNode: "agent"},
			{SourceNode: "agent", TargetNode: "end"},
		},
	}
	mem.PutWorkflow(wf)

	sub, err := bus.Subscribe(context.Background(), wf.ID)
	require.NoError(t, err)
	defer sub.Close()

	run, err := e.StartRun(context.Background(), wf.ID, map[string]interface{}{})
	require.NoError(t, err)

	drain(t, e, 50*time.Millisecond)

	got, err := e.Runs.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, got.Status)

	entries, err := e.Ledger.ListByRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, entries[1].Error, "tool_call_limit_exceeded")

	var sawNodeError, sawRunFailed bool
	for {
		select {
		case evt := <-sub.Events():
			switch evt.Kind {
			case eventbus.KindNodeError:
				sawNodeError = true
			case eventbus.KindRunFailed:
				sawRunFailed = true
			}
		default:
			assert.True(t, sawNodeError)
			assert.True(t, sawRunFailed)
			return
		}
	}
}
