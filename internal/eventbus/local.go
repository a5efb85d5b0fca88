package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/logger"
)

// LocalBus is an in-process EventBus, grounded on the teacher's Hub
// (cmd/fanout/hub.go) keyed-registration/broadcast shape, adapted from
// per-username WebSocket clients to per-workflow event channels. A
// single process running both engine and API can use this directly;
// multi-process deployments use RedisBus instead.
type LocalBus struct {
	log  *logger.Logger
	mu   sync.RWMutex
	subs map[uuid.UUID]map[*localSub]struct{}
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus(log *logger.Logger) *LocalBus {
	return &LocalBus{log: log, subs: make(map[uuid.UUID]map[*localSub]struct{})}
}

type localSub struct {
	bus        *LocalBus
	workflowID uuid.UUID
	ch         chan Event
	closeOnce  sync.Once
}

func (s *localSub) Events() <-chan Event { return s.ch }

func (s *localSub) Close() {
	s.closeOnce.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.workflowID], s)
		if len(s.bus.subs[s.workflowID]) == 0 {
			delete(s.bus.subs, s.workflowID)
		}
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe registers a new channel for workflowID's events.
func (b *LocalBus) Subscribe(ctx context.Context, workflowID uuid.UUID) (Subscription, error) {
	sub := &localSub{bus: b, workflowID: workflowID, ch: make(chan Event, 64)}

	b.mu.Lock()
	if b.subs[workflowID] == nil {
		b.subs[workflowID] = make(map[*localSub]struct{})
	}
	b.subs[workflowID][sub] = struct{}{}
	b.mu.Unlock()

	return sub, nil
}

// Publish fans event out to every live subscriber of its workflow.
// Delivery is best-effort: a subscriber whose buffer is full is
// skipped rather than allowed to block this call (§4.5).
func (b *LocalBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs[event.WorkflowID] {
		select {
		case sub.ch <- event:
		default:
			if b.log != nil {
				b.log.Warn("dropping event for slow subscriber", "workflow_id", event.WorkflowID, "kind", event.Kind)
			}
		}
	}
	return nil
}

// Close releases every live subscription.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subs := range b.subs {
		for sub := range subs {
			close(sub.ch)
		}
	}
	b.subs = make(map[uuid.UUID]map[*localSub]struct{})
	return nil
}
