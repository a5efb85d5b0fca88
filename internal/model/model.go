// Package model defines the core entities of the workflow execution engine:
// workflows, runs, ledger entries, and approval requests.
package model

import (
	"time"

	"github.com/google/uuid"
)

// NodeType enumerates the handler types the engine knows how to dispatch.
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeEnd          NodeType = "end"
	NodeAgent        NodeType = "agent"
	NodeIfElse       NodeType = "if_else"
	NodeGuardrails   NodeType = "guardrails"
	NodeFork         NodeType = "fork"
	NodeUserApproval NodeType = "user_approval"
	NodeCognitive    NodeType = "cognitive"
)

// Node is a single step in a workflow graph. Config shape varies by Type
// and is validated lazily at handler entry (see internal/handlers).
type Node struct {
	ID       string                 `json:"id"`
	Type     NodeType               `json:"type"`
	Config   map[string]interface{} `json:"config,omitempty"`
	Position map[string]float64     `json:"position,omitempty"`
}

// Edge connects two nodes. SourceHandle encodes a branch label; its
// absence means "any/default branch" (used by start, end, agent, fork).
type Edge struct {
	ID           string `json:"id"`
	SourceNode   string `json:"source_node"`
	TargetNode   string `json:"target_node"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Workflow is an authored graph snapshot. Graph authoring (CRUD) is out
// of scope for the engine; this type is what the engine reads.
type Workflow struct {
	ID          uuid.UUID `json:"id"`
	Owner       string    `json:"owner"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Nodes       []Node    `json:"nodes"`
	Edges       []Edge    `json:"edges"`
}

// NodeByID returns the node with the given id, or false if absent.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns all edges whose SourceNode is nodeID.
func (w *Workflow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range w.Edges {
		if e.SourceNode == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// RunStatus tracks the lifecycle of a single workflow execution.
type RunStatus string

const (
	RunRunning          RunStatus = "running"
	RunAwaitingApproval RunStatus = "awaiting_approval"
	RunCompleted        RunStatus = "completed"
	RunFailed           RunStatus = "failed"
)

// Run is one execution of a Workflow against a specific initial input.
// Status transitions monotonically except awaiting_approval -> running.
type Run struct {
	ID           uuid.UUID              `json:"id" db:"id"`
	WorkflowID   uuid.UUID              `json:"workflow_id" db:"workflow_id"`
	Status       RunStatus              `json:"status" db:"status"`
	InitialInput map[string]interface{} `json:"initial_input" db:"initial_input"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
	FinishedAt   *time.Time             `json:"finished_at,omitempty" db:"finished_at"`
}

// LedgerEntry is one append-only row recording a single node execution.
// A re-entry on approval resume creates a new row, never mutates an old one.
type LedgerEntry struct {
	ID          uuid.UUID              `json:"id" db:"id"`
	RunID       uuid.UUID              `json:"run_id" db:"run_id"`
	NodeID      string                 `json:"node_id" db:"node_id"`
	NodeType    NodeType               `json:"node_type" db:"node_type"`
	Sequence    int64                  `json:"sequence" db:"sequence"`
	Input       map[string]interface{} `json:"input" db:"input"`
	Output      map[string]interface{} `json:"output,omitempty" db:"output"`
	ToolCalls   []ToolCall             `json:"tool_calls,omitempty" db:"tool_calls"`
	StartedAt   time.Time              `json:"started_at" db:"started_at"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty" db:"finished_at"`
	DurationMS  *int64                 `json:"duration_ms,omitempty" db:"duration_ms"`
	Error       string                 `json:"error,omitempty" db:"error"`
}

// ToolCall records one tool invocation made during an agent/cognitive
// node's execution (or the traversal of a cognitive node's virtual graph).
type ToolCall struct {
	ToolID    string                 `json:"tool_id"`
	Arguments map[string]interface{} `json:"arguments"`
	Result    interface{}            `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ApprovalRequest exists only while a run is awaiting_approval at NodeID.
type ApprovalRequest struct {
	RunID        uuid.UUID              `json:"run_id" db:"run_id"`
	NodeID       string                 `json:"node_id" db:"node_id"`
	Message      string                 `json:"message" db:"message"`
	PendingInput map[string]interface{} `json:"pending_input" db:"pending_input"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}
