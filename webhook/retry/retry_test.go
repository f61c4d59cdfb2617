package retry_test

import (
	"testing"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	p := retry.DefaultPolicy()

	t.Run("doubles from the base", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, p.Backoff(0))
		assert.Equal(t, 120*time.Second, p.Backoff(1))
		assert.Equal(t, 240*time.Second, p.Backoff(2))
		assert.Equal(t, 480*time.Second, p.Backoff(3))
		assert.Equal(t, 960*time.Second, p.Backoff(4))
		assert.Equal(t, 1920*time.Second, p.Backoff(5))
	})

	t.Run("monotonic and capped", func(t *testing.T) {
		prev := time.Duration(0)
		for n := 0; n < 200; n++ {
			d := p.Backoff(n)
			assert.GreaterOrEqual(t, d, prev)
			assert.LessOrEqual(t, d, time.Hour)
			prev = d
		}
		assert.Equal(t, time.Hour, p.Backoff(6))
		assert.Equal(t, time.Hour, p.Backoff(1000))
	})

	t.Run("negative attempts use the base", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, p.Backoff(-3))
	})

	t.Run("uncapped policy does not overflow", func(t *testing.T) {
		uncapped := retry.Policy{Base: time.Second}
		assert.Greater(t, uncapped.Backoff(100), time.Duration(0))
	})
}

func TestDecide(t *testing.T) {
	p := retry.DefaultPolicy()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("five failures end terminal with no sixth attempt", func(t *testing.T) {
		item := webhook.QueueItem{MaxAttempts: webhook.DefaultMaxAttempts}
		var delays []time.Duration
		for i := 0; i < 4; i++ {
			d := p.Decide(item, "boom", now)
			require.False(t, d.Terminal)
			assert.Equal(t, i+1, d.Attempts)
			assert.Equal(t, i+1, d.Entry.Attempt)
			assert.Equal(t, now.Add(d.Delay), d.NextAttemptAt)
			delays = append(delays, d.Delay)
			item.Attempts = d.Attempts
		}
		assert.Equal(t, []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second, 480 * time.Second}, delays)

		d := p.Decide(item, "boom", now)
		assert.True(t, d.Terminal)
		assert.Equal(t, 5, d.Attempts)
		assert.Equal(t, "boom", d.Entry.Error)
		assert.True(t, d.NextAttemptAt.IsZero())
	})

	t.Run("configured max attempts wins over the stored limit", func(t *testing.T) {
		two := retry.Policy{Base: time.Minute, Cap: time.Hour, MaxAttempts: 2}
		item := webhook.QueueItem{MaxAttempts: webhook.DefaultMaxAttempts, Attempts: 1}
		d := two.Decide(item, "boom", now)
		assert.True(t, d.Terminal)
		assert.Equal(t, 2, d.Attempts)
	})

	t.Run("zero policy limit falls back to the stored limit", func(t *testing.T) {
		d := retry.Policy{Base: time.Minute}.Decide(webhook.QueueItem{MaxAttempts: 1}, "boom", now)
		assert.True(t, d.Terminal)
	})

	t.Run("zero limits everywhere fall back to the default", func(t *testing.T) {
		d := retry.Policy{Base: time.Minute}.Decide(webhook.QueueItem{}, "boom", now)
		assert.False(t, d.Terminal)
		assert.Equal(t, now.Add(time.Minute), d.NextAttemptAt)
	})
}
