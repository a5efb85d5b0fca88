package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lyzr/flowengine/internal/logger"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on top of a single Redis Stream with a
// consumer group, grounded on the teacher's HTTP/HITL worker
// XGroupCreateMkStream/XReadGroup/XAck loop (§4.7's broker-ack contract).
type RedisQueue struct {
	client        *redis.Client
	log           *logger.Logger
	stream        string
	consumerGroup string
	consumerName  string
}

const streamKey = "flowengine:jobs"
const consumerGroupName = "flowengine_workers"

// NewRedisQueue creates a queue backed by client, ensuring the
// consumer group exists.
func NewRedisQueue(ctx context.Context, client *redis.Client, log *logger.Logger) (*RedisQueue, error) {
	q := &RedisQueue{
		client:        client,
		log:           log,
		stream:        streamKey,
		consumerGroup: consumerGroupName,
		consumerName:  fmt.Sprintf("worker_%s", uuid.New().String()[:8]),
	}

	err := client.XGroupCreateMkStream(ctx, q.stream, q.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return q, nil
}

type wireJob struct {
	RunID  string                 `json:"run_id"`
	NodeID string                 `json:"node_id"`
	Input  map[string]interface{} `json:"input"`
}

// Enqueue appends job to the stream.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(wireJob{RunID: job.RunID.String(), NodeID: job.NodeID, Input: job.Input})
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{"job": payload},
	}).Err()
}

// Dequeue blocks (with periodic re-poll) until a job is available.
func (q *RedisQueue) Dequeue(ctx context.Context) (Job, Ack, error) {
	for {
		streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.consumerGroup,
			Consumer: q.consumerName,
			Streams:  []string{q.stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err == redis.Nil {
			select {
			case <-ctx.Done():
				return Job{}, nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			return Job{}, nil, fmt.Errorf("XREADGROUP: %w", err)
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				job, err := q.decode(message)
				if err != nil {
					q.log.Error("dropping malformed job", "message_id", message.ID, "error", err)
					_ = q.client.XAck(ctx, q.stream, q.consumerGroup, message.ID).Err()
					continue
				}
				messageID := message.ID
				ack := func(ackCtx context.Context) error {
					return q.client.XAck(ackCtx, q.stream, q.consumerGroup, messageID).Err()
				}
				return job, ack, nil
			}
		}
	}
}

func (q *RedisQueue) decode(message redis.XMessage) (Job, error) {
	raw, ok := message.Values["job"].(string)
	if !ok {
		return Job{}, fmt.Errorf("message missing job field")
	}
	var wj wireJob
	if err := json.Unmarshal([]byte(raw), &wj); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	runID, err := uuid.Parse(wj.RunID)
	if err != nil {
		return Job{}, fmt.Errorf("parse run_id: %w", err)
	}
	return Job{RunID: runID, NodeID: wj.NodeID, Input: wj.Input}, nil
}

// Close is a no-op; the shared redis.Client is closed by its owner.
func (q *RedisQueue) Close() error { return nil }
