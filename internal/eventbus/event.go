// Package eventbus implements the publish/subscribe contract of §4.5:
// best-effort delivery of lifecycle events per workflow, with a slow
// subscriber dropped rather than allowed to block publishers.
package eventbus

import "github.com/google/uuid"

// Kind enumerates the 8 event kinds of §4.5.
type Kind string

const (
	KindConnected       Kind = "connected"
	KindRunStarted      Kind = "run_started"
	KindNodeStarted     Kind = "node_started"
	KindNodeCompleted   Kind = "node_completed"
	KindNodeError       Kind = "node_error"
	KindApprovalNeeded  Kind = "approval_needed"
	KindRunCompleted    Kind = "run_completed"
	KindRunFailed       Kind = "run_failed"
)

// Event is one lifecycle notification scoped to a workflow. Payload
// carries the kind-specific fields listed in §4.5.
type Event struct {
	Kind       Kind                   `json:"kind"`
	WorkflowID uuid.UUID              `json:"workflow_id"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewEvent builds an Event, copying payload into a fresh map.
func NewEvent(kind Kind, workflowID uuid.UUID, payload map[string]interface{}) Event {
	p := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		p[k] = v
	}
	return Event{Kind: kind, WorkflowID: workflowID, Payload: p}
}
