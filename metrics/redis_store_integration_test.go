//go:build integration

package metrics_test

import (
	"context"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testcontainersredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/marcelsud/commerce-webhooks/metrics"
)

func TestRedisStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainersredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	addr, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: strings.TrimPrefix(addr, "redis://")})
	defer client.Close()

	store := metrics.NewRedisStore(client)
	now := time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)

	require.NoError(t, store.Increment(ctx, metrics.Sample{IntegrationID: "int-1", TenantID: "t", Kind: metrics.Received, At: now}))
	require.NoError(t, store.Increment(ctx, metrics.Sample{IntegrationID: "int-1", TenantID: "t", Kind: metrics.Processed, ProcessingTime: 40 * time.Millisecond, At: now}))
	require.NoError(t, store.Increment(ctx, metrics.Sample{IntegrationID: "int-1", TenantID: "t", Kind: metrics.Failed, ErrorClass: metrics.Unauthorized, At: now.Add(-2 * time.Hour)}))

	buckets, err := store.Range(ctx, "int-1", metrics.BucketStart(now.Add(-24*time.Hour)), now)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(1), buckets[0].Errors.Unauthorized)
	assert.Equal(t, int64(1), buckets[1].Received)
	assert.Equal(t, int64(40), buckets[1].ProcessingTimeMs)
	assert.Equal(t, "t", buckets[1].TenantID)
}
