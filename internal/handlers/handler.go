// Package handlers implements the eight node handlers of §4.4. Each
// handler is a pure function over (NodeSpec, Context) that returns a
// merged output and the ids of successor nodes, or signals Suspend/Fail.
package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/model"
)

// Context carries everything a handler needs about the node it is
// executing, per §4.1 step 4.
type Context struct {
	Input      map[string]interface{}
	WorkflowID uuid.UUID
	RunID      uuid.UUID
	NodeID     string
}

// Result is the normal-path outcome of a handler: the merged output and
// the successor node ids to enqueue next.
type Result struct {
	Output      map[string]interface{}
	NextNodeIDs []string
	ToolCalls   []model.ToolCall
}

// Suspend is returned (wrapped as an error) by user_approval when it
// needs to pause the run pending an external decision (§4.1 step 6).
type Suspend struct {
	Message string
}

func (s *Suspend) Error() string { return fmt.Sprintf("suspended: %s", s.Message) }

// Fail is returned (wrapped as an error) by any handler that cannot
// complete; it always terminates the run (§4.1 step 7, §7).
type Fail struct {
	Reason string
	Err    error
}

func (f *Fail) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Reason, f.Err)
	}
	return f.Reason
}

func (f *Fail) Unwrap() error { return f.Err }

// NewFail builds a Fail from a reason string and an optional cause.
func NewFail(reason string, cause error) *Fail {
	return &Fail{Reason: reason, Err: cause}
}

// Handler executes one node type.
type Handler interface {
	Handle(ctx context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error)
}

// Dispatcher resolves and runs the handler for node.Type. The cognitive
// handler uses it to walk a virtual workflow inline (§4.4.8 step 3)
// without spawning real queue jobs or ledger entries for the sub-steps.
type Dispatcher interface {
	Dispatch(ctx context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error)
}

// Registry maps node types to handlers and implements Dispatcher.
type Registry struct {
	handlers map[model.NodeType]Handler
}

// NewRegistry builds an empty registry; use Register to populate it.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[model.NodeType]Handler)}
}

// Register associates a handler with a node type.
func (r *Registry) Register(t model.NodeType, h Handler) {
	r.handlers[t] = h
}

// Dispatch looks up and runs the handler for node.Type.
func (r *Registry) Dispatch(ctx context.Context, hctx Context, node model.Node, wf *model.Workflow) (Result, error) {
	h, ok := r.handlers[node.Type]
	if !ok {
		return Result{}, NewFail(fmt.Sprintf("unknown node type: %s", node.Type), nil)
	}
	return h.Handle(ctx, hctx, node, wf)
}

// MergeOutput implements §4.3's universal accumulation rule: a shallow,
// right-biased merge of input and the fields a handler produces.
func MergeOutput(input map[string]interface{}, produced map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(input)+len(produced))
	for k, v := range input {
		out[k] = v
	}
	for k, v := range produced {
		out[k] = v
	}
	return out
}

// nodesByHandle filters wf's outgoing edges from nodeID to those whose
// SourceHandle matches handle, returning their TargetNode ids.
func nodesByHandle(wf *model.Workflow, nodeID, handle string) []string {
	var ids []string
	for _, e := range wf.OutgoingEdges(nodeID) {
		if e.SourceHandle == handle {
			ids = append(ids, e.TargetNode)
		}
	}
	return ids
}

// allNextNodes returns every outgoing edge's target, regardless of handle.
func allNextNodes(wf *model.Workflow, nodeID string) []string {
	var ids []string
	for _, e := range wf.OutgoingEdges(nodeID) {
		ids = append(ids, e.TargetNode)
	}
	return ids
}

// configString extracts a required string field from a node config,
// failing cleanly on shape mismatch rather than panicking (per §9's
// "dynamic typing of config" note).
func configString(config map[string]interface{}, key string) (string, error) {
	v, ok := config[key]
	if !ok {
		return "", fmt.Errorf("missing config field: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("config field %s must be a string, got %T", key, v)
	}
	return s, nil
}

// configStringOptional extracts an optional string field, defaulting to "".
func configStringOptional(config map[string]interface{}, key string) string {
	v, ok := config[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// configBool extracts an optional bool field, defaulting to false.
func configBool(config map[string]interface{}, key string) bool {
	v, ok := config[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
