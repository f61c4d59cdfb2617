package webhook_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, s := range []webhook.Status{webhook.Pending, webhook.Processing, webhook.Completed, webhook.Failed} {
			assert.Equal(t, s, webhook.NewStatus(s.String()))
			assert.NoError(t, s.Validate())
		}
	})

	t.Run("unknown string defaults to pending", func(t *testing.T) {
		assert.Equal(t, webhook.Pending, webhook.NewStatus("bogus"))
	})

	t.Run("invalid status", func(t *testing.T) {
		err := webhook.Status(999).Validate()
		require.Error(t, err)
		assert.Equal(t, "unknown", webhook.Status(999).String())
	})

	t.Run("final states", func(t *testing.T) {
		assert.False(t, webhook.Pending.IsFinal())
		assert.False(t, webhook.Processing.IsFinal())
		assert.True(t, webhook.Completed.IsFinal())
		assert.True(t, webhook.Failed.IsFinal())
	})
}

func TestTopic(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		for _, topic := range webhook.Topics() {
			assert.Equal(t, topic, webhook.NewTopic(topic.String()))
			assert.NoError(t, topic.Validate())
		}
	})

	t.Run("platform names", func(t *testing.T) {
		assert.Equal(t, "orders/create", webhook.OrderCreated.String())
		assert.Equal(t, "customers/data_request", webhook.CustomerDataRequest.String())
	})

	t.Run("unknown topic", func(t *testing.T) {
		topic := webhook.NewTopic("carts/create")
		assert.Equal(t, webhook.Topic(0), topic)
		assert.Error(t, topic.Validate())
		assert.Equal(t, "unknown", topic.String())
	})

	t.Run("compliance topics", func(t *testing.T) {
		assert.True(t, webhook.ShopRedact.IsCompliance())
		assert.True(t, webhook.CustomerRedact.IsCompliance())
		assert.False(t, webhook.OrderCreated.IsCompliance())
	})
}

func TestNewQueueItem(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := webhook.InboundEvent{
		IntegrationID: "int-1",
		TenantID:      "tenant-1",
		Topic:         webhook.OrderCreated,
		Payload:       []byte(`{"id": 1}`),
	}

	item := webhook.NewQueueItem(ev, "orders/create:1:abcd1234", now)

	assert.Equal(t, webhook.Pending, item.Status)
	assert.Equal(t, 0, item.Attempts)
	assert.Equal(t, webhook.DefaultMaxAttempts, item.MaxAttempts)
	assert.Equal(t, now, item.NextAttemptAt)
	assert.Equal(t, "orders/create:1:abcd1234", item.IdempotencyKey)
	assert.Equal(t, "tenant-1", item.TenantID)
	assert.Nil(t, item.ClaimedAt)

	d := webhook.DeliveryFor(item)
	assert.Equal(t, 1, d.Attempt)
	assert.Equal(t, webhook.OrderCreated, d.Topic)
	assert.Equal(t, "int-1", d.IntegrationID)

	item.Attempts = 3
	assert.Equal(t, 4, webhook.DeliveryFor(item).Attempt)
}

func TestResult(t *testing.T) {
	assert.True(t, webhook.Succeeded().Success)
	assert.Equal(t, "boom", webhook.FailedWith(errors.New("boom")).Error)
	assert.False(t, webhook.FailedWith(nil).Success)

	h := webhook.HandlerFunc(func(ctx context.Context, d webhook.Delivery) webhook.Result {
		return webhook.Succeeded()
	})
	assert.True(t, h.Handle(context.Background(), webhook.Delivery{}).Success)
}

func TestQueueStats(t *testing.T) {
	var s webhook.QueueStats
	s.Add(webhook.Pending, 2)
	s.Add(webhook.Completed, 5)
	s.Add(webhook.Failed, 1)
	s.Add(webhook.Status(0), 9)

	assert.Equal(t, webhook.QueueStats{Pending: 2, Completed: 5, Failed: 1, Total: 8}, s)
}
