package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/redis/go-redis/v9"
)

const ledgerPrefix = "idempotency"

func recordKey(integrationID, key string) string {
	return fmt.Sprintf("%s:%s:%s", ledgerPrefix, integrationID, key)
}

/* LedgerStore is the Redis idempotency.Store
 * Each record is a hash whose key expires with the record, so Redis
 * removes most expired entries before DeleteExpired sees them
 */
type LedgerStore struct {
	client *redis.Client
}

// NewLedgerStore creates a ledger store over a connected client
func NewLedgerStore(client *redis.Client) *LedgerStore {
	return &LedgerStore{client: client}
}

// Lookup returns the live record for key
func (s *LedgerStore) Lookup(ctx context.Context, integrationID, key string, now time.Time) (idempotency.Entry, error) {
	data, err := s.client.HGetAll(ctx, recordKey(integrationID, key)).Result()
	if err != nil {
		return idempotency.Entry{}, fmt.Errorf("getting idempotency record: %w", err)
	}
	if len(data) == 0 {
		return idempotency.Entry{}, idempotency.ErrNotFound
	}

	e := idempotency.Entry{
		IntegrationID: integrationID,
		Key:           key,
		SourceEventID: data["source_event_id"],
		Topic:         webhook.NewTopic(data["topic"]),
		Processed:     data["processed"] == "1",
		StatusCode:    parseInt(data["status_code"]),
		Note:          data["note"],
		CreatedAt:     fromMillis(data["created_at"]),
		ExpiresAt:     fromMillis(data["expires_at"]),
	}
	if t := fromMillis(data["processed_at"]); !t.IsZero() {
		e.ProcessedAt = &t
	}
	if e.Expired(now) {
		return idempotency.Entry{}, idempotency.ErrNotFound
	}
	return e, nil
}

// Save upserts a record atomically
func (s *LedgerStore) Save(ctx context.Context, e idempotency.Entry) error {
	processed := "0"
	if e.Processed {
		processed = "1"
	}
	var processedAt int64
	if e.ProcessedAt != nil {
		processedAt = millis(*e.ProcessedAt)
	}

	args := []interface{}{
		millis(e.CreatedAt),
		millis(e.ExpiresAt),
		"source_event_id", e.SourceEventID,
		"topic", e.Topic.String(),
		"processed", processed,
		"processed_at", processedAt,
		"status_code", e.StatusCode,
		"note", e.Note,
	}
	if err := saveEntryScript.Run(ctx, s.client, []string{recordKey(e.IntegrationID, e.Key)}, args...).Err(); err != nil {
		return fmt.Errorf("saving idempotency record: %w", err)
	}
	return nil
}

// MarkProcessed flags a live record as processed
func (s *LedgerStore) MarkProcessed(ctx context.Context, integrationID, key string, statusCode int, note string, at time.Time) error {
	n, err := markProcessedScript.Run(ctx, s.client, []string{recordKey(integrationID, key)}, millis(at), statusCode, note).Int()
	if err != nil {
		return fmt.Errorf("marking idempotency record processed: %w", err)
	}
	if n == 0 {
		return idempotency.ErrNotFound
	}
	return nil
}

// DeleteExpired removes records whose expiry passed but whose key has not been evicted yet
func (s *LedgerStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var (
		cursor  uint64
		deleted int64
		cutoff  = millis(now)
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, ledgerPrefix+":*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scanning idempotency records: %w", err)
		}

		for _, key := range keys {
			exp, err := s.client.HGet(ctx, key, "expires_at").Result()
			if err == redis.Nil {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("reading idempotency record: %w", err)
			}
			ms, _ := strconv.ParseInt(exp, 10, 64)
			if ms > cutoff {
				continue
			}
			n, err := s.client.Del(ctx, key).Result()
			if err != nil {
				return deleted, fmt.Errorf("deleting idempotency record: %w", err)
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}
	return deleted, nil
}
