package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(integrationID string, createdAt time.Time) webhook.QueueItem {
	ev := webhook.InboundEvent{
		IntegrationID: integrationID,
		TenantID:      "tenant-1",
		Topic:         webhook.OrderCreated,
		Payload:       []byte(`{"id": 1}`),
	}
	return webhook.NewQueueItem(ev, "key", createdAt)
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("claim batch is oldest first and eligible only", func(t *testing.T) {
		q := memory.NewQueue()
		newer, err := q.Enqueue(ctx, newItem("int-1", now.Add(-time.Minute)))
		require.NoError(t, err)
		older, err := q.Enqueue(ctx, newItem("int-1", now.Add(-2*time.Minute)))
		require.NoError(t, err)
		future := newItem("int-1", now.Add(-3*time.Minute))
		future.NextAttemptAt = now.Add(time.Hour)
		_, err = q.Enqueue(ctx, future)
		require.NoError(t, err)

		batch, err := q.ClaimBatch(ctx, 10, now)
		require.NoError(t, err)
		require.Len(t, batch, 2)
		assert.Equal(t, older, batch[0].ID)
		assert.Equal(t, newer, batch[1].ID)

		// selecting does not claim
		item, err := q.Get(ctx, older)
		require.NoError(t, err)
		assert.Equal(t, webhook.Pending, item.Status)

		batch, err = q.ClaimBatch(ctx, 1, now)
		require.NoError(t, err)
		assert.Len(t, batch, 1)
	})

	t.Run("claim is exclusive under concurrency", func(t *testing.T) {
		q := memory.NewQueue()
		id, err := q.Enqueue(ctx, newItem("int-1", now))
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := q.Claim(ctx, id, now)
				assert.NoError(t, err)
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("retry then fail", func(t *testing.T) {
		q := memory.NewQueue()
		id, err := q.Enqueue(ctx, newItem("int-1", now))
		require.NoError(t, err)

		claimed, ok, err := q.Claim(ctx, id, now)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, webhook.Processing, claimed.Status)
		assert.Equal(t, 0, claimed.Attempts)

		next := now.Add(time.Minute)
		require.NoError(t, q.Retry(ctx, id, 1, next, webhook.ErrorEntry{Attempt: 1, Error: "boom", At: now}))

		item, err := q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.Pending, item.Status)
		assert.Equal(t, 1, item.Attempts)
		assert.Equal(t, next, item.NextAttemptAt)
		assert.Equal(t, "boom", item.LastError)
		require.Len(t, item.Errors, 1)

		retries, err := q.PendingRetries(ctx, "int-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), retries)

		_, ok, err = q.Claim(ctx, id, next.Add(-time.Second))
		require.NoError(t, err)
		assert.False(t, ok, "an item is not claimable before its next attempt time")

		claimed, ok, err = q.Claim(ctx, id, next)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, claimed.Attempts)
		require.NoError(t, q.Fail(ctx, id, 2, webhook.ErrorEntry{Attempt: 2, Error: "boom again", At: next}))

		item, err = q.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, item.Status)
		assert.Len(t, item.Errors, 2)
	})

	t.Run("transition requires processing", func(t *testing.T) {
		q := memory.NewQueue()
		id, err := q.Enqueue(ctx, newItem("int-1", now))
		require.NoError(t, err)

		err = q.Complete(ctx, id, time.Second, now)
		assert.ErrorIs(t, err, webhook.ErrInvalidTransition)

		err = q.Complete(ctx, "missing", time.Second, now)
		assert.ErrorIs(t, err, webhook.ErrNotFound)
	})

	t.Run("stats and cleanup", func(t *testing.T) {
		q := memory.NewQueue()
		old, err := q.Enqueue(ctx, newItem("int-1", now.Add(-10*24*time.Hour)))
		require.NoError(t, err)
		_, err = q.Enqueue(ctx, newItem("int-1", now))
		require.NoError(t, err)

		completedAt := now.Add(-8 * 24 * time.Hour)
		_, _, err = q.Claim(ctx, old, completedAt)
		require.NoError(t, err)
		require.NoError(t, q.Complete(ctx, old, time.Second, completedAt))

		stats, err := q.Stats(ctx, now.Add(-24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, webhook.QueueStats{Pending: 1, Total: 1}, stats)

		stats, err = q.Stats(ctx, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Completed)

		n, err := q.CleanupCompleted(ctx, now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		assert.Equal(t, 1, q.Len())
	})

	t.Run("recover stale claims", func(t *testing.T) {
		q := memory.NewQueue()
		createdAt := now.Add(-2 * time.Hour)
		retriable, err := q.Enqueue(ctx, newItem("int-1", createdAt))
		require.NoError(t, err)
		exhausted := newItem("int-2", createdAt)
		exhausted.Attempts = webhook.DefaultMaxAttempts - 1
		exhaustedID, err := q.Enqueue(ctx, exhausted)
		require.NoError(t, err)
		fresh, err := q.Enqueue(ctx, newItem("int-1", now))
		require.NoError(t, err)

		claimedAt := now.Add(-time.Hour)
		for _, id := range []string{retriable, exhaustedID} {
			_, ok, err := q.Claim(ctx, id, claimedAt)
			require.NoError(t, err)
			require.True(t, ok)
		}
		_, ok, err := q.Claim(ctx, fresh, now)
		require.NoError(t, err)
		require.True(t, ok)

		recovered, err := q.RecoverStale(ctx, now.Add(-10*time.Minute), now)
		require.NoError(t, err)
		require.Len(t, recovered, 2)
		byIntegration := map[string]webhook.Recovered{}
		for _, r := range recovered {
			byIntegration[r.IntegrationID] = r
		}
		assert.Equal(t, webhook.Recovered{ID: retriable, IntegrationID: "int-1", TenantID: "tenant-1", Attempts: 1}, byIntegration["int-1"])
		assert.Equal(t, webhook.Recovered{ID: exhaustedID, IntegrationID: "int-2", TenantID: "tenant-1", Attempts: webhook.DefaultMaxAttempts, Terminal: true}, byIntegration["int-2"])

		item, _ := q.Get(ctx, retriable)
		assert.Equal(t, webhook.Pending, item.Status)
		assert.Equal(t, 1, item.Attempts)
		assert.Equal(t, webhook.StaleClaimError, item.LastError)

		item, _ = q.Get(ctx, exhaustedID)
		assert.Equal(t, webhook.Failed, item.Status)

		item, _ = q.Get(ctx, fresh)
		assert.Equal(t, webhook.Processing, item.Status)
	})

	t.Run("unavailable", func(t *testing.T) {
		q := memory.NewQueue()
		q.SetUnavailable(errors.New("connection refused"))
		_, err := q.Enqueue(ctx, newItem("int-1", now))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
	})
}
