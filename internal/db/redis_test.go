package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis returns a client on DB 15, skipping when Redis is unreachable
func setupTestRedis(t *testing.T) *RedisClient {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	config := DefaultRedisConfig()
	config.DB = 15
	client := NewRedisClient(config)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		t.Skipf("Redis not available: %v", err)
	}

	t.Cleanup(func() { client.Close() })
	return client
}

func TestNewRedisClient(t *testing.T) {
	tests := []struct {
		name     string
		config   RedisConfig
		wantAddr string
		wantPool int
	}{
		{
			name:     "empty config uses defaults",
			config:   RedisConfig{},
			wantAddr: "localhost:6379",
			wantPool: 10,
		},
		{
			name: "custom config",
			config: RedisConfig{
				Host:     "redis.example.com",
				Port:     6380,
				Password: "secret",
				DB:       1,
				PoolSize: 20,
			},
			wantAddr: "redis.example.com:6380",
			wantPool: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewRedisClient(tt.config)
			defer client.Close()

			require.NotNil(t, client.GetClient())
			assert.Equal(t, tt.wantAddr, client.config.Addr())
			assert.Equal(t, tt.wantPool, client.config.PoolSize)
			assert.NotZero(t, client.config.DialTimeout)
		})
	}
}

func TestDefaultRedisConfig(t *testing.T) {
	config := DefaultRedisConfig()

	assert.Equal(t, "localhost", config.Host)
	assert.Equal(t, 6379, config.Port)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 3, config.MaxRetries)
}

func TestRedisClient_AppendCapped(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	key := fmt.Sprintf("test:capped:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	for i := 0; i < 7; i++ {
		require.NoError(t, client.AppendCapped(ctx, key, 5, time.Minute, fmt.Sprintf("m%d", i)))
	}

	values, err := client.LRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3", "m4", "m5", "m6"}, values)

	ttl, err := client.TTL(ctx, key)
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisClient_GetMissing(t *testing.T) {
	client := setupTestRedis(t)

	_, err := client.Get(context.Background(), "test:missing:key")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestRedisClient_SortedSet(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()

	key := fmt.Sprintf("test:zset:%d", time.Now().UnixNano())
	defer client.Del(ctx, key)

	require.NoError(t, client.ZAdd(ctx, key, 1, "old"))
	require.NoError(t, client.ZAdd(ctx, key, 2, "new"))

	members, err := client.ZRevRange(ctx, key, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, members)
}
