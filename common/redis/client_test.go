package redis

import (
	"context"
	"testing"

	"smartwake/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client := NewRedisClient(&config.RedisConfig{Addr: mr.Addr()})
	defer Close(client)

	assert.Equal(t, poolSize, client.Options().PoolSize)
	require.NoError(t, Ping(context.Background(), client))
}

func TestPing_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	client := NewRedisClient(&config.RedisConfig{Addr: addr})
	defer Close(client)

	err := Ping(context.Background(), client)
	require.Error(t, err)
	assert.Contains(t, err.Error(), addr)
}

func TestClose_Nil(t *testing.T) {
	assert.NoError(t, Close(nil))
}
