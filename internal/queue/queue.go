// Package queue implements the job queue adapter of §4.7: a FIFO of
// (run_id, node_id, accumulated_input) work items with at-least-once
// delivery and broker-driven redelivery on worker crash.
package queue

import (
	"context"

	"github.com/google/uuid"
)

// Job is one unit of engine work: execute nodeID within runID with the
// given accumulated input.
type Job struct {
	RunID uuid.UUID
	NodeID string
	Input  map[string]interface{}
}

// Queue is the contract the engine loop dequeues from and the run
// initiator/approval responder enqueue onto.
type Queue interface {
	// Enqueue returns once the job is durably accepted by the broker.
	Enqueue(ctx context.Context, job Job) error

	// Dequeue blocks until a job is available, returning it along with
	// an Ack to call once step 5 of §4.1 has completed. An un-acked
	// job is redelivered by the broker on worker crash.
	Dequeue(ctx context.Context) (Job, Ack, error)

	Close() error
}

// Ack acknowledges successful processing of a dequeued job.
type Ack func(ctx context.Context) error
