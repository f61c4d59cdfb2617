package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/marcelsud/commerce-webhooks/webhook/memory"
	"github.com/marcelsud/commerce-webhooks/webhook/mocks"
	"github.com/marcelsud/commerce-webhooks/webhook/retry"
	"github.com/marcelsud/commerce-webhooks/webhook/worker"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	queue   *memory.Queue
	store   *memory.LedgerStore
	ledger  *idempotency.Ledger
	metrics *metrics.Aggregator
	clock   *clock
}

func newFixture() *fixture {
	c := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := memory.NewLedgerStore()
	return &fixture{
		queue:   memory.NewQueue(),
		store:   store,
		ledger:  idempotency.NewLedger(store, zerolog.Nop(), idempotency.WithClock(c.Now)),
		metrics: metrics.NewAggregator(metrics.NewMemoryStore(), nil, zerolog.Nop(), metrics.WithClock(c.Now)),
		clock:   c,
	}
}

func (f *fixture) pool(h webhook.Handler, cfg worker.Config) *worker.Pool {
	return worker.NewPool(f.queue, h, cfg, zerolog.Nop(),
		worker.WithLedger(f.ledger),
		worker.WithRecorder(f.metrics),
		worker.WithClock(f.clock.Now),
	)
}

func (f *fixture) enqueue(t *testing.T, key string) string {
	t.Helper()
	ev := webhook.InboundEvent{
		IntegrationID: "int-1",
		TenantID:      "tenant-1",
		Topic:         webhook.OrderCreated,
		Payload:       []byte(`{"id": 1001}`),
	}
	f.ledger.Record(context.Background(), idempotency.Entry{
		IntegrationID: "int-1",
		Key:           key,
		Topic:         webhook.OrderCreated,
		StatusCode:    200,
		Note:          idempotency.NoteQueued,
	})
	id, err := f.queue.Enqueue(context.Background(), webhook.NewQueueItem(ev, key, f.clock.Now()))
	require.NoError(t, err)
	return id
}

func (f *fixture) health(t *testing.T) metrics.Health {
	t.Helper()
	h, err := f.metrics.Health(context.Background(), "int-1", 24*time.Hour)
	require.NoError(t, err)
	return h
}

func TestPool_Tick(t *testing.T) {
	ctx := context.Background()

	t.Run("success - completes and marks the ledger", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "orders/create:1001:abcd1234")

		h := mocks.NewHandler(t)
		h.On("Handle", mock.Anything, webhook.MatchDelivery(func(d webhook.Delivery) bool {
			return d.Topic == webhook.OrderCreated &&
				d.TenantID == "tenant-1" &&
				d.IntegrationID == "int-1" &&
				d.Attempt == 1
		})).Return(webhook.Succeeded()).Once()

		report, err := f.pool(h, worker.Config{}).Tick(ctx)

		require.NoError(t, err)
		assert.Equal(t, worker.Report{Claimed: 1, Completed: 1}, report)

		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.Completed, item.Status)

		entry, ok := f.store.Entry("int-1", "orders/create:1001:abcd1234")
		require.True(t, ok)
		assert.True(t, entry.Processed)
		assert.Equal(t, idempotency.NoteProcessed, entry.Note)

		assert.Equal(t, int64(1), f.health(t).TotalProcessed)
	})

	t.Run("failure - re-armed with backoff", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "k")
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			return webhook.FailedWith(errors.New("forwarding delivery: status 503"))
		})

		report, err := f.pool(h, worker.Config{}).Tick(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Retried)

		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.Pending, item.Status)
		assert.Equal(t, 1, item.Attempts)
		assert.Equal(t, f.clock.Now().Add(60*time.Second), item.NextAttemptAt)
		require.Len(t, item.Errors, 1)
		assert.Equal(t, "forwarding delivery: status 503", item.Errors[0].Error)

		health := f.health(t)
		assert.Equal(t, int64(1), health.TotalRetried)
		assert.Equal(t, int64(1), health.ErrorBreakdown.ServerError)

		entry, ok := f.store.Entry("int-1", "k")
		require.True(t, ok)
		assert.False(t, entry.Processed)
	})

	t.Run("five failures make the item terminal", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "k")
		var calls atomic.Int32
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			calls.Add(1)
			return webhook.FailedWith(errors.New("boom"))
		})
		p := f.pool(h, worker.Config{})

		var delays []time.Duration
		for i := 0; i < 5; i++ {
			_, err := p.Tick(ctx)
			require.NoError(t, err)
			item, err := f.queue.Get(ctx, id)
			require.NoError(t, err)
			if item.Status == webhook.Pending {
				delays = append(delays, item.NextAttemptAt.Sub(f.clock.Now()))
			}
			f.clock.Advance(2 * time.Hour)
		}

		report, err := p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, worker.Report{}, report)

		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, item.Status)
		assert.Equal(t, 5, item.Attempts)
		assert.Len(t, item.Errors, 5)
		assert.Equal(t, int32(5), calls.Load())
		assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 480 * time.Second}, delays)

		health := f.health(t)
		assert.Equal(t, int64(1), health.TotalFailed)
		assert.Equal(t, int64(4), health.TotalRetried)
	})

	t.Run("panic is a failed attempt", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "k")
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			panic("nil map")
		})

		report, err := f.pool(h, worker.Config{}).Tick(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Retried)
		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, item.LastError, "handler panic: nil map")
	})

	t.Run("handler timeout is a failed attempt", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "k")
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			<-ctx.Done()
			return webhook.Result{}
		})

		report, err := f.pool(h, worker.Config{HandlerTimeout: 20 * time.Millisecond}).Tick(ctx)

		require.NoError(t, err)
		assert.Equal(t, 1, report.Retried)
		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, item.LastError, "deadline exceeded")
		assert.Equal(t, int64(1), f.health(t).ErrorBreakdown.Timeout)
	})

	t.Run("ticks never overlap", func(t *testing.T) {
		f := newFixture()
		f.enqueue(t, "k")
		started := make(chan struct{})
		release := make(chan struct{})
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			close(started)
			<-release
			return webhook.Succeeded()
		})
		p := f.pool(h, worker.Config{})

		done := make(chan error)
		go func() {
			_, err := p.Tick(ctx)
			done <- err
		}()
		<-started

		_, err := p.Tick(ctx)
		assert.ErrorIs(t, err, worker.ErrTickInProgress)

		close(release)
		require.NoError(t, <-done)

		_, err = p.Tick(ctx)
		assert.NoError(t, err)
	})

	t.Run("pool size bounds each tick", func(t *testing.T) {
		f := newFixture()
		for i := 0; i < 25; i++ {
			f.enqueue(t, "k")
		}
		var active, peak atomic.Int32
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return webhook.Succeeded()
		})
		p := f.pool(h, worker.Config{PoolSize: 10})

		report, err := p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 10, report.Completed)
		assert.LessOrEqual(t, peak.Load(), int32(10))

		_, err = p.Tick(ctx)
		require.NoError(t, err)
		report, err = p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 5, report.Completed)
	})
}

func TestPool_Claims(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	item := webhook.QueueItem{ID: "item-1", IntegrationID: "int-1", Topic: webhook.OrderCreated, Status: webhook.Pending, MaxAttempts: 5}

	t.Run("lost claim skips the item", func(t *testing.T) {
		q := mocks.NewQueue(t)
		h := mocks.NewHandler(t)
		q.On("ClaimBatch", ctx, 10, now).Return([]webhook.QueueItem{item}, nil)
		q.On("Claim", ctx, "item-1", now).Return(webhook.QueueItem{}, false, nil)

		p := worker.NewPool(q, h, worker.Config{}, zerolog.Nop(), worker.WithClock(func() time.Time { return now }))
		report, err := p.Tick(ctx)

		require.NoError(t, err)
		assert.Equal(t, worker.Report{Skipped: 1}, report)
		h.AssertNotCalled(t, "Handle", mock.Anything, mock.Anything)
	})

	t.Run("claim error is published", func(t *testing.T) {
		q := mocks.NewQueue(t)
		h := mocks.NewHandler(t)
		q.On("ClaimBatch", ctx, 10, now).Return([]webhook.QueueItem{item}, nil)
		q.On("Claim", ctx, "item-1", now).Return(webhook.QueueItem{}, false, errors.New("connection reset"))

		p := worker.NewPool(q, h, worker.Config{}, zerolog.Nop(), worker.WithClock(func() time.Time { return now }))
		_, err := p.Tick(ctx)
		require.NoError(t, err)

		select {
		case err := <-p.Errors():
			assert.Contains(t, err.Error(), "claiming item item-1")
		default:
			t.Fatal("claim error was not published")
		}
	})

	t.Run("scan error is returned", func(t *testing.T) {
		q := mocks.NewQueue(t)
		h := mocks.NewHandler(t)
		q.On("ClaimBatch", ctx, 10, now).Return(nil, errors.New("connection reset"))

		p := worker.NewPool(q, h, worker.Config{}, zerolog.Nop(), worker.WithClock(func() time.Time { return now }))
		_, err := p.Tick(ctx)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "scanning queue")
	})

	t.Run("stale transition is published", func(t *testing.T) {
		q := mocks.NewQueue(t)
		h := mocks.NewHandler(t)
		q.On("ClaimBatch", ctx, 10, now).Return([]webhook.QueueItem{item}, nil)
		q.On("Claim", ctx, "item-1", now).Return(claimed(item, 0), true, nil)
		h.On("Handle", mock.Anything, mock.Anything).Return(webhook.Succeeded())
		q.On("Complete", ctx, "item-1", time.Duration(0), now).Return(webhook.ErrInvalidTransition)

		p := worker.NewPool(q, h, worker.Config{}, zerolog.Nop(), worker.WithClock(func() time.Time { return now }))
		report, err := p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Completed)

		err = <-p.Errors()
		assert.ErrorIs(t, err, webhook.ErrInvalidTransition)
	})

	t.Run("decides from the stored attempt count, not the scanned one", func(t *testing.T) {
		q := mocks.NewQueue(t)
		h := mocks.NewHandler(t)
		q.On("ClaimBatch", ctx, 10, now).Return([]webhook.QueueItem{item}, nil)
		q.On("Claim", ctx, "item-1", now).Return(claimed(item, 4), true, nil)
		h.On("Handle", mock.Anything, webhook.MatchDelivery(func(d webhook.Delivery) bool {
			return d.Attempt == 5
		})).Return(webhook.FailedWith(errors.New("boom")))
		q.On("Fail", ctx, "item-1", 5, mock.Anything).Return(nil)

		p := worker.NewPool(q, h, worker.Config{}, zerolog.Nop(), worker.WithClock(func() time.Time { return now }))
		report, err := p.Tick(ctx)

		require.NoError(t, err)
		assert.Equal(t, worker.Report{Claimed: 1, Failed: 1}, report)
		q.AssertNotCalled(t, "Retry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func claimed(item webhook.QueueItem, attempts int) webhook.QueueItem {
	item.Status = webhook.Processing
	item.Attempts = attempts
	return item
}

// interleavedQueue runs after once, between the first batch scan and its claims
type interleavedQueue struct {
	*memory.Queue
	once  sync.Once
	after func()
}

func (q *interleavedQueue) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]webhook.QueueItem, error) {
	items, err := q.Queue.ClaimBatch(ctx, limit, now)
	q.once.Do(q.after)
	return items, err
}

func TestPool_SharedQueue(t *testing.T) {
	ctx := context.Background()

	t.Run("item re-armed by another instance is not run again before its backoff", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "k")
		var calls atomic.Int32
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			calls.Add(1)
			return webhook.FailedWith(errors.New("forwarding delivery: status 503"))
		})

		other := f.pool(h, worker.Config{InstanceID: "worker-b"})
		shared := &interleavedQueue{Queue: f.queue, after: func() {
			report, err := other.Tick(ctx)
			assert.NoError(t, err)
			assert.Equal(t, 1, report.Retried)
		}}
		p := worker.NewPool(shared, h, worker.Config{InstanceID: "worker-a"}, zerolog.Nop(),
			worker.WithLedger(f.ledger),
			worker.WithRecorder(f.metrics),
			worker.WithClock(f.clock.Now),
		)

		report, err := p.Tick(ctx)
		require.NoError(t, err)
		assert.Equal(t, worker.Report{Skipped: 1}, report)

		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, webhook.Pending, item.Status)
		assert.Equal(t, 1, item.Attempts)
		assert.Len(t, item.Errors, 1)
		assert.Equal(t, f.clock.Now().Add(time.Minute), item.NextAttemptAt)
	})

	t.Run("attempt counts accumulate across instances", func(t *testing.T) {
		f := newFixture()
		id := f.enqueue(t, "k")
		h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
			return webhook.FailedWith(errors.New("boom"))
		})
		a := f.pool(h, worker.Config{InstanceID: "worker-a"})
		b := f.pool(h, worker.Config{InstanceID: "worker-b"})

		for i, p := range []*worker.Pool{a, b, a, b, a} {
			_, err := p.Tick(ctx)
			require.NoError(t, err)
			item, err := f.queue.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, i+1, item.Attempts)
			f.clock.Advance(2 * time.Hour)
		}

		item, err := f.queue.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, webhook.Failed, item.Status)
		assert.Len(t, item.Errors, webhook.DefaultMaxAttempts)
	})
}

func TestPool_ConfiguredMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.enqueue(t, "k")
	h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
		return webhook.FailedWith(errors.New("boom"))
	})
	p := f.pool(h, worker.Config{Policy: retry.Policy{Base: time.Minute, Cap: time.Hour, MaxAttempts: 2}})

	report, err := p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Retried)
	f.clock.Advance(2 * time.Hour)

	report, err = p.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	item, err := f.queue.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, webhook.Failed, item.Status)
	assert.Equal(t, 2, item.Attempts)
	assert.Equal(t, int64(1), f.health(t).TotalFailed)
}

type heartbeatStub struct {
	mu       sync.Mutex
	statuses []string
	forgot   bool
}

func (h *heartbeatStub) Beat(ctx context.Context, instanceID, status string, inFlight int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
	return nil
}

func (h *heartbeatStub) Forget(ctx context.Context, instanceID string) error {
	h.forgot = true
	return nil
}

func TestPool_Heartbeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.enqueue(t, "k")
	hb := &heartbeatStub{}
	p := worker.NewPool(f.queue, webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
		return webhook.Succeeded()
	}), worker.Config{InstanceID: "worker-a"}, zerolog.Nop(), worker.WithHeartbeats(hb), worker.WithClock(f.clock.Now))

	_, err := p.Tick(ctx)
	require.NoError(t, err)
	_, err = p.Tick(ctx)
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(ctx))

	assert.Equal(t, "worker-a", p.InstanceID())
	assert.Equal(t, []string{"processing", "idle", "idle"}, hb.statuses)
	assert.True(t, hb.forgot)
}

func TestExecute(t *testing.T) {
	ctx := context.Background()
	d := webhook.Delivery{Topic: webhook.OrderCreated}

	res := worker.Execute(ctx, webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
		return webhook.Result{}
	}), d, 0)
	assert.False(t, res.Success)
	assert.Equal(t, "handler failed", res.Error)

	res = worker.Execute(ctx, webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
		panic(errors.New("bad payload"))
	}), d, time.Second)
	assert.Equal(t, "handler panic: bad payload", res.Error)
}
