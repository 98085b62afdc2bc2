// Package messaging provides message queue adapters.
package messaging

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"triage_server/core/port/out"

	"github.com/redis/go-redis/v9"
)

// Stream names
const (
	StreamTriageRun = "triage:run"
	dlqPrefix       = "dlq:"
)

// streamMaxLen caps the run stream; requests older than this are trimmed.
const streamMaxLen = 1000

// RedisPublisher implements out.RunPublisher using Redis Streams.
type RedisPublisher struct {
	client *redis.Client
	stream string
}

// NewRedisPublisher publishes to stream, or StreamTriageRun when empty.
func NewRedisPublisher(client *redis.Client, stream string) *RedisPublisher {
	if stream == "" {
		stream = StreamTriageRun
	}
	return &RedisPublisher{client: client, stream: stream}
}

// PublishRun appends a run request to the run stream.
func (p *RedisPublisher) PublishRun(ctx context.Context, req *out.RunRequest) error {
	return p.publish(ctx, p.stream, req)
}

func (p *RedisPublisher) publish(ctx context.Context, stream string, job any) error {
	values, err := encodeValues(job)
	if err != nil {
		return err
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		ID:     "*",
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", stream, err)
	}
	return nil
}

// encodeValues wraps a job as the single "data" field of a stream entry.
func encodeValues(job any) (map[string]any, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return map[string]any{"data": string(data)}, nil
}

// DecodeRunRequest parses the payload of a run stream entry.
func DecodeRunRequest(data []byte) (*out.RunRequest, error) {
	var req out.RunRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}
	if req.Trigger == "" {
		req.Trigger = "stream"
	}
	return &req, nil
}

var _ out.RunPublisher = (*RedisPublisher)(nil)
