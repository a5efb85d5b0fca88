package eventbus

import (
	"context"

	"github.com/google/uuid"
)

// Subscription is a live subscription to a workflow's events. Events
// arrives on Events(); Close() must be called to release resources.
type Subscription interface {
	Events() <-chan Event
	Close()
}

// EventBus is the contract of §4.5: publish scoped to a workflow id,
// subscribe to receive a channel of events for that workflow.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, workflowID uuid.UUID) (Subscription, error)
	Close() error
}
