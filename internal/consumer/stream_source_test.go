package consumer

import (
	"context"
	"testing"
	"time"

	rediscommon "smartwake/common/redis"
	"smartwake/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestStreamFeatureSource_Fetch(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	source := NewStreamFeatureSource(client, "smartwake:features", "edge", "c1", 10, zap.NewNop())

	// nothing published yet; the group is created on first fetch
	features, err := source.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, features)

	ts := time.Date(2024, 3, 10, 6, 40, 0, 0, time.UTC)
	for _, restlessness := range []float64{0.1, 0.2} {
		_, err := rediscommon.PublishJSONToStream(ctx, client, "smartwake:features", models.Features{
			Timestamp: ts,
			Values:    map[string]float64{"restlessness": restlessness},
		})
		require.NoError(t, err)
	}
	require.NoError(t, client.XAdd(ctx, &redis.XAddArgs{
		Stream: "smartwake:features",
		Values: map[string]interface{}{"data": "{broken"},
	}).Err())

	features, err = source.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, features, 2, "malformed entry dropped")
	assert.Equal(t, 0.1, features[0].Values["restlessness"])
	assert.Equal(t, 0.2, features[1].Values["restlessness"])
	assert.Equal(t, models.OriginMonitor, features[0].Origin)
	assert.True(t, ts.Equal(features[0].Timestamp))

	pending, err := client.XPending(ctx, "smartwake:features", "edge").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count, "everything read was acked")

	features, err = source.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, features)
}
