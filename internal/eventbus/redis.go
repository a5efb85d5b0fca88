package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "flowengine:events:"

func channelFor(workflowID uuid.UUID) string {
	return channelPrefix + workflowID.String()
}

// RedisBus is a Redis pub/sub backed EventBus, grounded on the
// teacher's RedisSubscriber (cmd/fanout/redis_subscriber.go), adapted
// from a single PSubscribe("workflow:events:*") fan-in-to-hub shape to
// one subscription per workflow id, since this engine serves many
// independent workflows rather than one pattern-subscribed process.
type RedisBus struct {
	client *redis.Client
	log    *logger.Logger
}

// NewRedisBus wraps client as an EventBus.
func NewRedisBus(client *redis.Client, log *logger.Logger) *RedisBus {
	return &RedisBus{client: client, log: log}
}

// Publish marshals event to JSON and publishes it on the workflow's
// channel. Redis pub/sub delivery to connected subscribers is
// best-effort by nature, satisfying §4.5.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.client.Publish(ctx, channelFor(event.WorkflowID), payload).Err()
}

type redisSub struct {
	pubsub *redis.PubSub
	ch     chan Event
	cancel context.CancelFunc
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() {
	s.cancel()
	_ = s.pubsub.Close()
}

// Subscribe opens a dedicated Redis pub/sub subscription for
// workflowID and forwards decoded events onto a buffered channel until
// the caller closes the Subscription or ctx is cancelled.
func (b *RedisBus) Subscribe(ctx context.Context, workflowID uuid.UUID) (Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channelFor(workflowID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe to workflow channel: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSub{pubsub: pubsub, ch: make(chan Event, 64), cancel: cancel}

	go func() {
		defer close(sub.ch)
		redisCh := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					if b.log != nil {
						b.log.Error("dropping malformed event", "channel", msg.Channel, "error", err)
					}
					continue
				}
				select {
				case sub.ch <- event:
				default:
					if b.log != nil {
						b.log.Warn("dropping event for slow subscriber", "workflow_id", workflowID, "kind", event.Kind)
					}
				}
			}
		}
	}()

	return sub, nil
}

// Close is a no-op; the shared redis.Client is closed by its owner.
func (b *RedisBus) Close() error { return nil }
