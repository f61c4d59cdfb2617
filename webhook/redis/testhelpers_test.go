//go:build integration

package redis_test

import (
	"context"
	"strings"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/marcelsud/commerce-webhooks/webhook/redis"
)

/* Test helpers for Redis integration tests
 * One container per test function; subtests flush the database between runs
 */

// SetupRedis starts a Redis container and returns a connected client
func SetupRedis(t *testing.T, ctx context.Context) *goredis.Client {
	t.Helper()

	redisContainer, err := testcontainersredis.Run(ctx,
		"redis:7-alpine",
		testcontainersredis.WithLogLevel(testcontainersredis.LogLevelVerbose),
	)
	require.NoError(t, err, "failed to start Redis container")
	t.Cleanup(func() {
		if err := redisContainer.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate Redis container: %v", err)
		}
	})

	addr, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get Redis connection string")
	addr = strings.TrimPrefix(addr, "redis://")

	client, err := redis.NewClient(addr, "", 0)
	require.NoError(t, err, "failed to connect to Redis")
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// Flush empties the database between subtests
func Flush(t *testing.T, ctx context.Context, client *goredis.Client) {
	t.Helper()
	require.NoError(t, client.FlushDB(ctx).Err())
}

// GetKeyTTL returns the TTL of a Redis key in seconds
func GetKeyTTL(t *testing.T, ctx context.Context, client *goredis.Client, key string) int64 {
	t.Helper()

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)

	return int64(ttl.Seconds())
}
