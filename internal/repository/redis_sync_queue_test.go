package repository

import (
	"context"
	"testing"

	"smartwake/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupQueue(t *testing.T) (*miniredis.Miniredis, *RedisSyncQueue) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisSyncQueue(client, "smartwake:sync:pending", zap.NewNop())
}

func TestRedisSyncQueue_FIFO(t *testing.T) {
	ctx := context.Background()
	_, q := setupQueue(t)

	head, err := q.Peek(ctx)
	require.NoError(t, err)
	assert.Nil(t, head, "empty queue")
	require.NoError(t, q.Pop(ctx), "pop on empty is a no-op")

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, q.Push(ctx, models.SleepReading{ID: id, LocalQuality: models.QualityFair}))
	}
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"r1", "r2", "r3"} {
		head, err := q.Peek(ctx)
		require.NoError(t, err)
		require.NotNil(t, head)
		assert.Equal(t, want, head.ID)
		require.NoError(t, q.Pop(ctx))
	}

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRedisSyncQueue_PeekDoesNotRemove(t *testing.T) {
	ctx := context.Background()
	_, q := setupQueue(t)

	require.NoError(t, q.Push(ctx, models.SleepReading{ID: "r1"}))
	_, err := q.Peek(ctx)
	require.NoError(t, err)
	_, err = q.Peek(ctx)
	require.NoError(t, err)

	n, _ := q.Len(ctx)
	assert.Equal(t, int64(1), n)
}

func TestRedisSyncQueue_SkipsCorruptHead(t *testing.T) {
	ctx := context.Background()
	_, q := setupQueue(t)

	require.NoError(t, q.client.RPush(ctx, "smartwake:sync:pending", "{not json").Err())
	require.NoError(t, q.Push(ctx, models.SleepReading{ID: "r2"}))

	head, err := q.Peek(ctx)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "r2", head.ID)

	n, _ := q.Len(ctx)
	assert.Equal(t, int64(1), n)
}
