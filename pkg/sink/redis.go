package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/SKR-karthick/ReachInbox-Assignment/pkg/models"
)

// RedisSink publishes each canonical message as one entry on a Redis stream,
// letting out-of-process consumers (indexer, classifier, notifier) read the
// event feed with XREAD/consumer groups.
type RedisSink struct {
	client *redis.Client
	stream string
}

// NewRedisSink connects to addr and verifies the server is reachable.
func NewRedisSink(ctx context.Context, addr, stream string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisSink{client: client, stream: stream}, nil
}

// Emit appends the message to the stream. The message ID rides along as its
// own field so consumers can dedupe without decoding the payload.
func (s *RedisSink) Emit(ctx context.Context, msg *models.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":      msg.ID,
			"account": msg.AccountID,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
