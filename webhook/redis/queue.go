package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/redis/go-redis/v9"
)

/* Key layout
 * queue:item:{id}            hash, the item document
 * queue:errors:{id}          list, error history entries as JSON
 * queue:ready                zset, pending ids scored by next attempt time
 * queue:status:{status}      zset, ids per status scored by creation time
 * queue:claimed              zset, processing ids scored by claim time
 * queue:completed            zset, completed ids scored by completion time
 * queue:retrying:{integration} set, pending ids with at least one failed attempt
 */
const (
	queuePrefix  = "queue"
	readyKey     = "queue:ready"
	claimedKey   = "queue:claimed"
	completedKey = "queue:completed"
)

func itemKey(id string) string {
	return fmt.Sprintf("%s:item:%s", queuePrefix, id)
}

func errorsKey(id string) string {
	return fmt.Sprintf("%s:errors:%s", queuePrefix, id)
}

func statusKey(s webhook.Status) string {
	return fmt.Sprintf("%s:status:%s", queuePrefix, s)
}

func retryingKey(integrationID string) string {
	return fmt.Sprintf("%s:retrying:%s", queuePrefix, integrationID)
}

// Queue is the Redis webhook.Queue
type Queue struct {
	client *redis.Client
}

// NewQueue creates a queue over a connected client
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue writes the item and its indexes in one MULTI/EXEC round trip
func (q *Queue) Enqueue(ctx context.Context, item webhook.QueueItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = webhook.DefaultMaxAttempts
	}
	created := millis(item.CreatedAt)

	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, itemKey(item.ID), map[string]interface{}{
			"id":              item.ID,
			"integration_id":  item.IntegrationID,
			"tenant_id":       item.TenantID,
			"topic":           item.Topic.String(),
			"payload":         item.Payload,
			"idempotency_key": item.IdempotencyKey,
			"status":          webhook.Pending.String(),
			"attempts":        item.Attempts,
			"max_attempts":    item.MaxAttempts,
			"next_attempt_at": millis(item.NextAttemptAt),
			"last_error":      "",
			"created_at":      created,
			"updated_at":      created,
		})
		pipe.ZAdd(ctx, readyKey, redis.Z{Score: float64(millis(item.NextAttemptAt)), Member: item.ID})
		pipe.ZAdd(ctx, statusKey(webhook.Pending), redis.Z{Score: float64(created), Member: item.ID})
		if item.Attempts > 0 {
			pipe.SAdd(ctx, retryingKey(item.IntegrationID), item.ID)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("enqueueing item: %w", err)
	}

	return item.ID, nil
}

// claimScanPage is how many pending ids ClaimBatch reads per round trip
const claimScanPage = 100

/* ClaimBatch returns eligible Pending items oldest first without changing them
 * It walks the pending index in creation order a page at a time, checks each
 * page's due times against the ready index, and stops once limit items are due
 */
func (q *Queue) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]webhook.QueueItem, error) {
	due := float64(millis(now))
	page := int64(claimScanPage)
	if int64(limit) > page {
		page = int64(limit)
	}

	var ids []string
	for start := int64(0); limit <= 0 || len(ids) < limit; start += page {
		pending, err := q.client.ZRange(ctx, statusKey(webhook.Pending), start, start+page-1).Result()
		if err != nil {
			return nil, fmt.Errorf("selecting eligible items: %w", err)
		}
		if len(pending) == 0 {
			break
		}
		scores, err := q.client.ZMScore(ctx, readyKey, pending...).Result()
		if err != nil {
			return nil, fmt.Errorf("reading due times: %w", err)
		}
		for i, id := range pending {
			if scores[i] > due {
				continue
			}
			ids = append(ids, id)
			if limit > 0 && len(ids) == limit {
				break
			}
		}
		if int64(len(pending)) < page {
			break
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	items, err := q.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	eligible := items[:0]
	for _, item := range items {
		if item.Status == webhook.Pending {
			eligible = append(eligible, item)
		}
	}
	return eligible, nil
}

/* Claim moves one due item from Pending to Processing atomically
 * The item is read back after the script; once Processing it belongs to this caller
 */
func (q *Queue) Claim(ctx context.Context, id string, now time.Time) (webhook.QueueItem, bool, error) {
	integrationID, err := q.client.HGet(ctx, itemKey(id), "integration_id").Result()
	if err == redis.Nil {
		return webhook.QueueItem{}, false, nil
	}
	if err != nil {
		return webhook.QueueItem{}, false, fmt.Errorf("claiming item: %w", err)
	}
	keys := []string{
		itemKey(id),
		readyKey,
		statusKey(webhook.Pending),
		statusKey(webhook.Processing),
		claimedKey,
		retryingKey(integrationID),
	}
	n, err := claimScript.Run(ctx, q.client, keys, id, millis(now)).Int()
	if err != nil {
		return webhook.QueueItem{}, false, fmt.Errorf("claiming item: %w", err)
	}
	if n == 0 {
		return webhook.QueueItem{}, false, nil
	}

	item, err := q.Get(ctx, id)
	if err != nil {
		return webhook.QueueItem{}, false, fmt.Errorf("reading claimed item: %w", err)
	}
	return item, true, nil
}

// Complete marks a Processing item as Completed
func (q *Queue) Complete(ctx context.Context, id string, processingTime time.Duration, now time.Time) error {
	keys := []string{
		itemKey(id),
		statusKey(webhook.Processing),
		statusKey(webhook.Completed),
		claimedKey,
		completedKey,
	}
	n, err := completeScript.Run(ctx, q.client, keys, id, millis(now), processingTime.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("completing item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("completing item %s: %w", id, webhook.ErrInvalidTransition)
	}
	return nil
}

// Retry re-arms a Processing item as Pending
func (q *Queue) Retry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, entry webhook.ErrorEntry) error {
	integrationID, err := q.client.HGet(ctx, itemKey(id), "integration_id").Result()
	if err == redis.Nil {
		return webhook.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding error entry: %w", err)
	}

	keys := []string{
		itemKey(id),
		errorsKey(id),
		statusKey(webhook.Processing),
		statusKey(webhook.Pending),
		claimedKey,
		readyKey,
		retryingKey(integrationID),
	}
	n, err := retryScript.Run(ctx, q.client, keys, id, attempts, millis(nextAttemptAt), entry.Error, string(data), millis(entry.At)).Int()
	if err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("scheduling retry for item %s: %w", id, webhook.ErrInvalidTransition)
	}
	return nil
}

// Fail marks a Processing item as terminally Failed
func (q *Queue) Fail(ctx context.Context, id string, attempts int, entry webhook.ErrorEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding error entry: %w", err)
	}

	keys := []string{
		itemKey(id),
		errorsKey(id),
		statusKey(webhook.Processing),
		statusKey(webhook.Failed),
		claimedKey,
	}
	n, err := failScript.Run(ctx, q.client, keys, id, attempts, entry.Error, string(data), millis(entry.At)).Int()
	if err != nil {
		return fmt.Errorf("failing item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failing item %s: %w", id, webhook.ErrInvalidTransition)
	}
	return nil
}

// Get returns one item with its error history
func (q *Queue) Get(ctx context.Context, id string) (webhook.QueueItem, error) {
	items, err := q.load(ctx, []string{id})
	if err != nil {
		return webhook.QueueItem{}, err
	}
	if len(items) == 0 {
		return webhook.QueueItem{}, webhook.ErrNotFound
	}
	return items[0], nil
}

// Stats counts items created at or after since, by status
func (q *Queue) Stats(ctx context.Context, since time.Time) (webhook.QueueStats, error) {
	from := strconv.FormatInt(millis(since), 10)
	statuses := []webhook.Status{webhook.Pending, webhook.Processing, webhook.Completed, webhook.Failed}

	cmds := make([]*redis.IntCmd, len(statuses))
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, s := range statuses {
			cmds[i] = pipe.ZCount(ctx, statusKey(s), from, "+inf")
		}
		return nil
	})
	if err != nil {
		return webhook.QueueStats{}, fmt.Errorf("counting items: %w", err)
	}

	var stats webhook.QueueStats
	for i, s := range statuses {
		stats.Add(s, cmds[i].Val())
	}
	return stats, nil
}

// PendingRetries counts Pending items of an integration with at least one failed attempt
func (q *Queue) PendingRetries(ctx context.Context, integrationID string) (int64, error) {
	n, err := q.client.SCard(ctx, retryingKey(integrationID)).Result()
	if err != nil {
		return 0, fmt.Errorf("counting pending retries: %w", err)
	}
	return n, nil
}

// CleanupCompleted deletes Completed items finished before the horizon
func (q *Queue) CleanupCompleted(ctx context.Context, before time.Time) (int64, error) {
	ids, err := q.client.ZRangeByScore(ctx, completedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(millis(before), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("selecting completed items: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	_, err = q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, itemKey(id), errorsKey(id))
			pipe.ZRem(ctx, statusKey(webhook.Completed), id)
			pipe.ZRem(ctx, completedKey, id)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("deleting completed items: %w", err)
	}
	return int64(len(ids)), nil
}

// RecoverStale counts every item claimed before claimedBefore and still Processing as a failed attempt
func (q *Queue) RecoverStale(ctx context.Context, claimedBefore time.Time, now time.Time) ([]webhook.Recovered, error) {
	ids, err := q.client.ZRangeByScore(ctx, claimedKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(millis(claimedBefore), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("selecting stale items: %w", err)
	}

	var recovered []webhook.Recovered
	for _, id := range ids {
		owner, err := q.client.HMGet(ctx, itemKey(id), "integration_id", "tenant_id").Result()
		if err != nil {
			return recovered, fmt.Errorf("recovering stale item: %w", err)
		}
		integrationID, _ := owner[0].(string)
		tenantID, _ := owner[1].(string)
		if integrationID == "" {
			q.client.ZRem(ctx, claimedKey, id)
			continue
		}

		keys := []string{
			itemKey(id),
			errorsKey(id),
			statusKey(webhook.Processing),
			statusKey(webhook.Pending),
			statusKey(webhook.Failed),
			claimedKey,
			readyKey,
			retryingKey(integrationID),
		}
		res, err := recoverScript.Run(ctx, q.client, keys, id, millis(now), now.UTC().Format(time.RFC3339Nano), webhook.StaleClaimError).Int64Slice()
		if err != nil {
			return recovered, fmt.Errorf("recovering stale item: %w", err)
		}
		if len(res) != 2 || res[0] == 0 {
			continue
		}
		recovered = append(recovered, webhook.Recovered{
			ID:            id,
			IntegrationID: integrationID,
			TenantID:      tenantID,
			Attempts:      int(res[1]),
			Terminal:      res[0] == 2,
		})
	}
	return recovered, nil
}

// Close closes the Redis connection
func (q *Queue) Close(ctx context.Context) error {
	return q.client.Close()
}

// load fetches items and their error histories in one pipeline, skipping missing ids
func (q *Queue) load(ctx context.Context, ids []string) ([]webhook.QueueItem, error) {
	hashes := make([]*redis.MapStringStringCmd, len(ids))
	histories := make([]*redis.StringSliceCmd, len(ids))
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			hashes[i] = pipe.HGetAll(ctx, itemKey(id))
			histories[i] = pipe.LRange(ctx, errorsKey(id), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading items: %w", err)
	}

	items := make([]webhook.QueueItem, 0, len(ids))
	for i := range ids {
		data := hashes[i].Val()
		if len(data) == 0 {
			continue
		}
		item, err := decodeItem(data, histories[i].Val())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(data map[string]string, history []string) (webhook.QueueItem, error) {
	item := webhook.QueueItem{
		ID:             data["id"],
		IntegrationID:  data["integration_id"],
		TenantID:       data["tenant_id"],
		Topic:          webhook.NewTopic(data["topic"]),
		Payload:        []byte(data["payload"]),
		IdempotencyKey: data["idempotency_key"],
		Status:         webhook.NewStatus(data["status"]),
		Attempts:       parseInt(data["attempts"]),
		MaxAttempts:    parseInt(data["max_attempts"]),
		NextAttemptAt:  fromMillis(data["next_attempt_at"]),
		LastError:      data["last_error"],
		CreatedAt:      fromMillis(data["created_at"]),
		UpdatedAt:      fromMillis(data["updated_at"]),
	}
	if t := fromMillis(data["claimed_at"]); !t.IsZero() {
		item.ClaimedAt = &t
	}
	if t := fromMillis(data["completed_at"]); !t.IsZero() {
		item.CompletedAt = &t
	}
	for _, raw := range history {
		var entry webhook.ErrorEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return webhook.QueueItem{}, fmt.Errorf("decoding error history: %w", err)
		}
		item.Errors = append(item.Errors, entry)
	}
	return item, nil
}
