package queue

import (
	"context"
	"sync"

	"github.com/lyzr/flowengine/internal/logger"
)

// MemoryQueue is an in-memory FIFO queue, grounded on the teacher's
// common/queue/queue.go channel-per-topic design, collapsed to a
// single topic since the engine models one logical queue (§4.7).
// Suitable for tests and single-process deployments; it has no broker
// to redeliver un-acked jobs, so Ack is a no-op.
type MemoryQueue struct {
	ch     chan Job
	log    *logger.Logger
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates an in-memory queue with the given buffer size.
func NewMemoryQueue(log *logger.Logger, buffer int) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1000
	}
	return &MemoryQueue{ch: make(chan Job, buffer), log: log}
}

// Enqueue pushes job onto the in-memory channel.
func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue blocks until a job is available or ctx is cancelled.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, Ack, error) {
	select {
	case job, ok := <-q.ch:
		if !ok {
			return Job{}, nil, context.Canceled
		}
		return job, func(context.Context) error { return nil }, nil
	case <-ctx.Done():
		return Job{}, nil, ctx.Err()
	}
}

// Close closes the underlying channel.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	if q.log != nil {
		q.log.Info("closed memory queue")
	}
	return nil
}
