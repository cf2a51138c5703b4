package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

func setupRedisCache(t *testing.T) *RedisCache {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	c, err := NewRedisCache(RedisConfig{URL: "redis://" + endpoint + "/0"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}

func TestRedisCache(t *testing.T) {
	c := setupRedisCache(t)
	ctx := context.Background()

	t.Run("increment starts at 1 and resets after the window", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := c.IncrementWithTTL(ctx, "rl:test", 300*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		time.Sleep(400 * time.Millisecond)

		n, err := c.IncrementWithTTL(ctx, "rl:test", 300*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("zero ttl counts without expiring", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := c.IncrementWithTTL(ctx, "rl:forever", 0)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}

		pttl, err := c.GetClient().PTTL(ctx, c.keyPrefix+"rl:forever").Result()
		require.NoError(t, err)
		assert.Equal(t, time.Duration(-1), pttl)
	})

	t.Run("round-trips JSON values", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))

		var got map[string]int
		found, err := c.Get(ctx, "k", &got)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, 1, got["a"])

		require.NoError(t, c.Delete(ctx, "k"))
		found, err = c.Get(ctx, "k", nil)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("reports remote backend", func(t *testing.T) {
		assert.Equal(t, "remote", c.Backend())
		assert.False(t, c.Degraded())
	})
}

func TestTTLMillis(t *testing.T) {
	assert.Equal(t, int64(0), ttlMillis(0))
	assert.Equal(t, int64(0), ttlMillis(-time.Second))
	assert.Equal(t, int64(1), ttlMillis(500*time.Microsecond))
	assert.Equal(t, int64(60000), ttlMillis(time.Minute))
}
