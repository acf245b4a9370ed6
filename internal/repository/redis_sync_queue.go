package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"smartwake/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// RedisSyncQueue offline sync queue on a Redis list (RPUSH tail, LINDEX/LPOP head)
type RedisSyncQueue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

var _ SyncQueue = (*RedisSyncQueue)(nil)

// NewRedisSyncQueue creates the queue on key
func NewRedisSyncQueue(client *redis.Client, key string, logger *zap.Logger) *RedisSyncQueue {
	return &RedisSyncQueue{client: client, key: key, logger: logger}
}

// Push appends reading at the tail
func (q *RedisSyncQueue) Push(ctx context.Context, reading models.SleepReading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal queued reading: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue reading: %w", err)
	}
	return nil
}

// Peek returns the head without removing it
func (q *RedisSyncQueue) Peek(ctx context.Context) (*models.SleepReading, error) {
	data, err := q.client.LIndex(ctx, q.key, 0).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}

	var reading models.SleepReading
	if err := json.Unmarshal(data, &reading); err != nil {
		// a corrupt head would block the queue forever
		q.logger.Error("Dropping corrupt sync queue entry", zap.String("key", q.key), zap.Error(err))
		if popErr := q.Pop(ctx); popErr != nil {
			return nil, popErr
		}
		return q.Peek(ctx)
	}
	return &reading, nil
}

// Pop removes the head
func (q *RedisSyncQueue) Pop(ctx context.Context) error {
	if err := q.client.LPop(ctx, q.key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to pop queue head: %w", err)
	}
	return nil
}

// Len pending_sync_count
func (q *RedisSyncQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue length: %w", err)
	}
	return n, nil
}
