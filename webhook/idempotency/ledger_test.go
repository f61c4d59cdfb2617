package idempotency_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/marcelsud/commerce-webhooks/webhook/memory"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("deterministic", func(t *testing.T) {
		a := idempotency.Derive("1001", webhook.OrderCreated, ts)
		b := idempotency.Derive("1001", webhook.OrderCreated, ts)
		assert.Equal(t, a, b)
		assert.True(t, strings.HasPrefix(a, "orders/create:1001:"))
		assert.Len(t, a, len("orders/create:1001:")+8)
	})

	t.Run("same instant in another zone", func(t *testing.T) {
		zone := time.FixedZone("EST", -5*3600)
		assert.Equal(t,
			idempotency.Derive("1001", webhook.OrderCreated, ts),
			idempotency.Derive("1001", webhook.OrderCreated, ts.In(zone)),
		)
	})

	t.Run("distinguishes every component", func(t *testing.T) {
		base := idempotency.Derive("1001", webhook.OrderCreated, ts)
		assert.NotEqual(t, base, idempotency.Derive("1002", webhook.OrderCreated, ts))
		assert.NotEqual(t, base, idempotency.Derive("1001", webhook.OrderUpdated, ts))
		assert.NotEqual(t, base, idempotency.Derive("1001", webhook.OrderCreated, ts.Add(time.Second)))
	})
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	entry := idempotency.Entry{
		IntegrationID: "int-1",
		Key:           "orders/create:1001:abcd1234",
		SourceEventID: "1001",
		Topic:         webhook.OrderCreated,
		StatusCode:    200,
		Note:          "queued",
	}

	t.Run("record then check is duplicate", func(t *testing.T) {
		store := memory.NewLedgerStore()
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(clock))

		assert.False(t, ledger.Check(ctx, "int-1", entry.Key).IsDuplicate)

		ledger.Record(ctx, entry)

		res := ledger.Check(ctx, "int-1", entry.Key)
		assert.True(t, res.IsDuplicate)
		assert.Equal(t, now, res.OriginalTimestamp)

		// keys are scoped by integration
		assert.False(t, ledger.Check(ctx, "int-2", entry.Key).IsDuplicate)

		stored, ok := store.Entry("int-1", entry.Key)
		require.True(t, ok)
		assert.Equal(t, now.Add(idempotency.DefaultTTL), stored.ExpiresAt)
		assert.False(t, stored.Processed)
	})

	t.Run("expires after ttl", func(t *testing.T) {
		store := memory.NewLedgerStore()
		current := now
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(func() time.Time { return current }))

		ledger.Record(ctx, entry)
		current = now.Add(idempotency.DefaultTTL - time.Second)
		assert.True(t, ledger.Check(ctx, "int-1", entry.Key).IsDuplicate)

		current = now.Add(idempotency.DefaultTTL)
		assert.False(t, ledger.Check(ctx, "int-1", entry.Key).IsDuplicate)

		n, err := ledger.CleanupExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("check fails open", func(t *testing.T) {
		store := memory.NewLedgerStore()
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(clock))
		ledger.Record(ctx, entry)

		store.SetError(errors.New("connection reset"))
		assert.False(t, ledger.Check(ctx, "int-1", entry.Key).IsDuplicate)
	})

	t.Run("record is best effort", func(t *testing.T) {
		store := memory.NewLedgerStore()
		store.SetError(errors.New("connection reset"))
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(clock))

		assert.NotPanics(t, func() { ledger.Record(ctx, entry) })
		assert.NotPanics(t, func() { ledger.MarkProcessed(ctx, "int-1", entry.Key, 200, "done") })
	})

	t.Run("mark processed keeps expiry", func(t *testing.T) {
		store := memory.NewLedgerStore()
		current := now
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(func() time.Time { return current }))
		ledger.Record(ctx, entry)

		current = now.Add(time.Minute)
		ledger.MarkProcessed(ctx, "int-1", entry.Key, 200, "processed")

		stored, ok := store.Entry("int-1", entry.Key)
		require.True(t, ok)
		assert.True(t, stored.Processed)
		require.NotNil(t, stored.ProcessedAt)
		assert.Equal(t, current, *stored.ProcessedAt)
		assert.Equal(t, now.Add(idempotency.DefaultTTL), stored.ExpiresAt)
		assert.Equal(t, "processed", stored.Note)
	})

	t.Run("note is truncated", func(t *testing.T) {
		store := memory.NewLedgerStore()
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(clock))

		long := entry
		long.Note = strings.Repeat("x", idempotency.MaxNoteLen+100)
		long.Processed = true
		ledger.Record(ctx, long)

		stored, ok := store.Entry("int-1", entry.Key)
		require.True(t, ok)
		assert.Len(t, stored.Note, idempotency.MaxNoteLen)
		require.NotNil(t, stored.ProcessedAt)
	})

	t.Run("custom ttl", func(t *testing.T) {
		store := memory.NewLedgerStore()
		ledger := idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(clock), idempotency.WithTTL(time.Hour))
		ledger.Record(ctx, entry)

		stored, _ := store.Entry("int-1", entry.Key)
		assert.Equal(t, now.Add(time.Hour), stored.ExpiresAt)
	})
}
