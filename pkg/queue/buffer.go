// Package queue implements the named FIFO queues connecting the pipeline
// stages, backed by Redis lists, plus the polling runner every stage is
// built on.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/socrates-soc/socrates/pkg/models"
)

// ErrMalformedPayload indicates a queue entry that is not valid JSON.
// Callers drop the entry and continue.
var ErrMalformedPayload = errors.New("malformed queue payload")

// NewClient builds a Redis client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// Buffer is one named FIFO queue. Push appends at the tail, Pop blocks on
// the head. maxLen of 0 means unbounded; otherwise the queue keeps only the
// newest maxLen entries and the trim runs in the same transaction as the
// append, so no observer ever sees the bound exceeded.
type Buffer struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewBuffer wraps the list at key on the given client.
func NewBuffer(client *redis.Client, key string, maxLen int64) *Buffer {
	return &Buffer{
		client: client,
		key:    key,
		maxLen: maxLen,
	}
}

// Key returns the Redis key of the underlying list.
func (b *Buffer) Key() string {
	return b.key
}

// Push appends one JSON-encoded payload to the tail of the queue.
func (b *Buffer) Push(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", b.key, err)
	}

	if b.maxLen <= 0 {
		if err := b.client.RPush(ctx, b.key, data).Err(); err != nil {
			return fmt.Errorf("pushing to %s: %w", b.key, err)
		}
		return nil
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, b.key, data)
		pipe.LTrim(ctx, b.key, -b.maxLen, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("pushing to %s: %w", b.key, err)
	}
	return nil
}

// Pop blocks up to timeout for the next payload. Returns (nil, nil) when
// the queue stayed empty for the whole timeout. A payload that is not valid
// JSON yields ErrMalformedPayload.
func (b *Buffer) Pop(ctx context.Context, timeout time.Duration) (models.RawAlert, error) {
	res, err := b.client.BLPop(ctx, timeout, b.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("popping from %s: %w", b.key, err)
	}

	// BLPop returns [key, value].
	var payload models.RawAlert
	if err := json.Unmarshal([]byte(res[1]), &payload); err != nil {
		return nil, fmt.Errorf("%w on %s: %v", ErrMalformedPayload, b.key, err)
	}
	return payload, nil
}

// Len returns the current queue depth.
func (b *Buffer) Len(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, b.key).Result()
	if err != nil {
		return 0, fmt.Errorf("measuring %s: %w", b.key, err)
	}
	return n, nil
}
