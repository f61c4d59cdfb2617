package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/commerce-webhooks/webhook"
)

/* Queue is an in-process webhook.Queue
 * Every transition happens under one mutex, which gives the same
 * conditional-write semantics as the durable backends within a single process
 */
type Queue struct {
	mu          sync.Mutex
	items       map[string]*webhook.QueueItem
	unavailable error
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{items: make(map[string]*webhook.QueueItem)}
}

// SetUnavailable makes Enqueue fail with err until called again with nil
func (q *Queue) SetUnavailable(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.unavailable = err
}

// Enqueue stores the item as Pending
func (q *Queue) Enqueue(ctx context.Context, item webhook.QueueItem) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.unavailable != nil {
		return "", fmt.Errorf("enqueueing item: %w", q.unavailable)
	}
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if _, exists := q.items[item.ID]; exists {
		return "", fmt.Errorf("enqueueing item: duplicate id %s", item.ID)
	}
	item.Status = webhook.Pending
	item.Payload = append([]byte(nil), item.Payload...)
	q.items[item.ID] = &item
	return item.ID, nil
}

// ClaimBatch returns eligible Pending items, oldest first
func (q *Queue) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]webhook.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var eligible []webhook.QueueItem
	for _, item := range q.items {
		if item.Status == webhook.Pending && !item.NextAttemptAt.After(now) {
			eligible = append(eligible, clone(item))
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

// Claim moves a due Pending item to Processing
func (q *Queue) Claim(ctx context.Context, id string, now time.Time) (webhook.QueueItem, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok || item.Status != webhook.Pending || item.NextAttemptAt.After(now) {
		return webhook.QueueItem{}, false, nil
	}
	item.Status = webhook.Processing
	item.ClaimedAt = &now
	item.UpdatedAt = now
	return clone(item), true, nil
}

// Complete marks a Processing item as Completed
func (q *Queue) Complete(ctx context.Context, id string, processingTime time.Duration, now time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.processing(id)
	if err != nil {
		return err
	}
	item.Status = webhook.Completed
	item.CompletedAt = &now
	item.UpdatedAt = now
	return nil
}

// Retry re-arms a Processing item
func (q *Queue) Retry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, entry webhook.ErrorEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.processing(id)
	if err != nil {
		return err
	}
	item.Status = webhook.Pending
	item.Attempts = attempts
	item.NextAttemptAt = nextAttemptAt
	item.LastError = entry.Error
	item.Errors = append(item.Errors, entry)
	item.ClaimedAt = nil
	item.UpdatedAt = entry.At
	return nil
}

// Fail marks a Processing item as terminally Failed
func (q *Queue) Fail(ctx context.Context, id string, attempts int, entry webhook.ErrorEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, err := q.processing(id)
	if err != nil {
		return err
	}
	item.Status = webhook.Failed
	item.Attempts = attempts
	item.LastError = entry.Error
	item.Errors = append(item.Errors, entry)
	item.UpdatedAt = entry.At
	return nil
}

// Get returns a copy of an item
func (q *Queue) Get(ctx context.Context, id string) (webhook.QueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.items[id]
	if !ok {
		return webhook.QueueItem{}, webhook.ErrNotFound
	}
	return clone(item), nil
}

// Stats counts items created at or after since
func (q *Queue) Stats(ctx context.Context, since time.Time) (webhook.QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var stats webhook.QueueStats
	for _, item := range q.items {
		if !item.CreatedAt.Before(since) {
			stats.Add(item.Status, 1)
		}
	}
	return stats, nil
}

// PendingRetries counts Pending items of an integration that already failed once
func (q *Queue) PendingRetries(ctx context.Context, integrationID string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, item := range q.items {
		if item.IntegrationID == integrationID && item.Status == webhook.Pending && item.Attempts > 0 {
			n++
		}
	}
	return n, nil
}

// CleanupCompleted deletes Completed items finished before the horizon
func (q *Queue) CleanupCompleted(ctx context.Context, before time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for id, item := range q.items {
		if item.Status == webhook.Completed && item.CompletedAt != nil && item.CompletedAt.Before(before) {
			delete(q.items, id)
			n++
		}
	}
	return n, nil
}

// RecoverStale counts stuck Processing items as a failed attempt
func (q *Queue) RecoverStale(ctx context.Context, claimedBefore time.Time, now time.Time) ([]webhook.Recovered, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var recovered []webhook.Recovered
	for _, item := range q.items {
		if item.Status != webhook.Processing || item.ClaimedAt == nil || !item.ClaimedAt.Before(claimedBefore) {
			continue
		}
		item.Attempts++
		entry := webhook.ErrorEntry{Attempt: item.Attempts, Error: webhook.StaleClaimError, At: now}
		item.Errors = append(item.Errors, entry)
		item.LastError = entry.Error
		item.ClaimedAt = nil
		item.UpdatedAt = now
		terminal := item.Attempts >= item.MaxAttempts
		if terminal {
			item.Status = webhook.Failed
		} else {
			item.Status = webhook.Pending
			item.NextAttemptAt = now
		}
		recovered = append(recovered, webhook.Recovered{
			ID:            item.ID,
			IntegrationID: item.IntegrationID,
			TenantID:      item.TenantID,
			Attempts:      item.Attempts,
			Terminal:      terminal,
		})
	}
	sort.Slice(recovered, func(i, j int) bool { return recovered[i].ID < recovered[j].ID })
	return recovered, nil
}

// Close is a no-op
func (q *Queue) Close(ctx context.Context) error {
	return nil
}

// Len returns the number of stored items
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) processing(id string) (*webhook.QueueItem, error) {
	item, ok := q.items[id]
	if !ok {
		return nil, webhook.ErrNotFound
	}
	if item.Status != webhook.Processing {
		return nil, fmt.Errorf("item %s is %s: %w", id, item.Status, webhook.ErrInvalidTransition)
	}
	return item, nil
}

func clone(item *webhook.QueueItem) webhook.QueueItem {
	c := *item
	c.Payload = append([]byte(nil), item.Payload...)
	c.Errors = append([]webhook.ErrorEntry(nil), item.Errors...)
	return c
}
