package queue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_EnqueueDequeueRoundTrip(t *testing.T) {
	q := NewMemoryQueue(logger.New("error", "text"), 4)
	job := Job{RunID: uuid.New(), NodeID: "n1", Input: map[string]interface{}{"x": 1}}

	require.NoError(t, q.Enqueue(context.Background(), job))

	got, ack, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, job, got)
	require.NoError(t, ack(context.Background()))
}

func TestMemoryQueue_DequeueRespectsContextCancellation(t *testing.T) {
	q := NewMemoryQueue(logger.New("error", "text"), 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_CloseIsIdempotent(t *testing.T) {
	q := NewMemoryQueue(logger.New("error", "text"), 1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
}
