package logging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBuffer is a Redis-list backed Sink. Records are appended with RPUSH
// and the list is capped so an unattended consumer cannot grow it without
// bound; a downstream collector drains the list out of process.
type RedisBuffer struct {
	client   *redis.Client
	queueKey string
	maxSize  int64
}

// RedisBufferConfig holds configuration for the Redis audit buffer
type RedisBufferConfig struct {
	QueueKey string
	MaxSize  int64 // 0 means unbounded
}

// DefaultRedisBufferConfig returns the default buffer settings
func DefaultRedisBufferConfig() RedisBufferConfig {
	return RedisBufferConfig{
		QueueKey: "gateway:audit",
		MaxSize:  100_000,
	}
}

// enqueueScript appends and trims in one atomic step so the cap holds under
// concurrent writers.
var enqueueScript = redis.NewScript(`
	local key = KEYS[1]
	local value = ARGV[1]
	local max_size = tonumber(ARGV[2])

	redis.call('RPUSH', key, value)

	local len = redis.call('LLEN', key)
	if len > max_size then
		redis.call('LTRIM', key, len - max_size, -1)
	end

	return len
`)

// NewRedisBuffer creates a Redis-backed audit sink
func NewRedisBuffer(client *redis.Client, cfg RedisBufferConfig) *RedisBuffer {
	if cfg.QueueKey == "" {
		cfg.QueueKey = DefaultRedisBufferConfig().QueueKey
	}
	return &RedisBuffer{
		client:   client,
		queueKey: cfg.QueueKey,
		maxSize:  cfg.MaxSize,
	}
}

func (rb *RedisBuffer) Enqueue(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}

	if rb.maxSize > 0 {
		if err := enqueueScript.Run(ctx, rb.client, []string{rb.queueKey}, data, rb.maxSize).Err(); err != nil {
			return fmt.Errorf("failed to enqueue audit record: %w", err)
		}
		return nil
	}

	if err := rb.client.RPush(ctx, rb.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue audit record: %w", err)
	}
	return nil
}

// Len returns the current queue length, for health reporting.
func (rb *RedisBuffer) Len(ctx context.Context) (int64, error) {
	return rb.client.LLen(ctx, rb.queueKey).Result()
}
