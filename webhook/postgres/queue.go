package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/marcelsud/commerce-webhooks/webhook"
)

/* Queue is the PostgreSQL webhook.Queue
 * Every state change is a single UPDATE guarded by the expected status,
 * so concurrent workers in any number of processes coordinate through the table
 */
type Queue struct {
	DB *sql.DB
}

// NewQueue creates a queue over an open database
func NewQueue(db *sql.DB) *Queue {
	return &Queue{DB: db}
}

const queueColumns = "id, integration_id, tenant_id, topic, payload, idempotency_key, status, attempts, max_attempts, next_attempt_at, last_error, error_history, created_at, updated_at, claimed_at, completed_at"

// Enqueue inserts a Pending item with a single write
func (q *Queue) Enqueue(ctx context.Context, item webhook.QueueItem) (string, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.MaxAttempts <= 0 {
		item.MaxAttempts = webhook.DefaultMaxAttempts
	}

	query := `
		INSERT INTO webhook_queue (id, integration_id, tenant_id, topic, payload, idempotency_key, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $8, $9, $10, $10)
	`

	// JSONB columns take the payload as text
	_, err := q.DB.ExecContext(ctx, query,
		item.ID,
		item.IntegrationID,
		item.TenantID,
		item.Topic.String(),
		string(item.Payload),
		item.IdempotencyKey,
		item.Attempts,
		item.MaxAttempts,
		item.NextAttemptAt,
		item.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("enqueueing item: %w", err)
	}

	return item.ID, nil
}

// ClaimBatch selects eligible Pending items oldest first without changing them
func (q *Queue) ClaimBatch(ctx context.Context, limit int, now time.Time) ([]webhook.QueueItem, error) {
	query := "SELECT " + queueColumns + " FROM webhook_queue WHERE status = 'pending' AND next_attempt_at <= $1 ORDER BY created_at ASC LIMIT $2"

	rows, err := q.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("selecting eligible items: %w", err)
	}
	defer rows.Close()

	var items []webhook.QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating eligible items: %w", err)
	}

	return items, nil
}

/* Claim moves one due item from Pending to Processing
 * RETURNING hands back the stored row, so the caller decides from the attempt
 * count another instance may have written since ClaimBatch. No row means another worker won.
 */
func (q *Queue) Claim(ctx context.Context, id string, now time.Time) (webhook.QueueItem, bool, error) {
	query := "UPDATE webhook_queue SET status = 'processing', claimed_at = $2, updated_at = $2 WHERE id = $1 AND status = 'pending' AND next_attempt_at <= $2 RETURNING " + queueColumns

	item, err := scanItem(q.DB.QueryRowContext(ctx, query, id, now))
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.QueueItem{}, false, nil
	}
	if err != nil {
		return webhook.QueueItem{}, false, fmt.Errorf("claiming item: %w", err)
	}
	return item, true, nil
}

// Complete marks a Processing item as Completed
func (q *Queue) Complete(ctx context.Context, id string, processingTime time.Duration, now time.Time) error {
	query := "UPDATE webhook_queue SET status = 'completed', processing_time_ms = $2, completed_at = $3, updated_at = $3 WHERE id = $1 AND status = 'processing'"

	n, err := q.exec(ctx, query, id, processingTime.Milliseconds(), now)
	if err != nil {
		return fmt.Errorf("completing item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("completing item %s: %w", id, webhook.ErrInvalidTransition)
	}
	return nil
}

// Retry re-arms a Processing item and appends to its error history
func (q *Queue) Retry(ctx context.Context, id string, attempts int, nextAttemptAt time.Time, entry webhook.ErrorEntry) error {
	history, err := historyEntry(entry)
	if err != nil {
		return err
	}

	query := "UPDATE webhook_queue SET status = 'pending', attempts = $2, next_attempt_at = $3, last_error = $4, error_history = error_history || $5::jsonb, claimed_at = NULL, updated_at = $6 WHERE id = $1 AND status = 'processing'"

	n, err := q.exec(ctx, query, id, attempts, nextAttemptAt, entry.Error, history, entry.At)
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
	history, err := historyEntry(entry)
	if err != nil {
		return err
	}

	query := "UPDATE webhook_queue SET status = 'failed', attempts = $2, last_error = $3, error_history = error_history || $4::jsonb, updated_at = $5 WHERE id = $1 AND status = 'processing'"

	n, err := q.exec(ctx, query, id, attempts, entry.Error, history, entry.At)
	if err != nil {
		return fmt.Errorf("failing item: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("failing item %s: %w", id, webhook.ErrInvalidTransition)
	}
	return nil
}

// Get returns one item by ID
func (q *Queue) Get(ctx context.Context, id string) (webhook.QueueItem, error) {
	query := "SELECT " + queueColumns + " FROM webhook_queue WHERE id = $1"

	item, err := scanItem(q.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.QueueItem{}, webhook.ErrNotFound
	}
	if err != nil {
		return webhook.QueueItem{}, err
	}
	return item, nil
}

// Stats counts items created at or after since, by status
func (q *Queue) Stats(ctx context.Context, since time.Time) (webhook.QueueStats, error) {
	query := "SELECT status, COUNT(*) FROM webhook_queue WHERE created_at >= $1 GROUP BY status"

	rows, err := q.DB.QueryContext(ctx, query, since)
	if err != nil {
		return webhook.QueueStats{}, fmt.Errorf("counting items: %w", err)
	}
	defer rows.Close()

	var stats webhook.QueueStats
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return webhook.QueueStats{}, fmt.Errorf("scanning item count: %w", err)
		}
		stats.Add(webhook.NewStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return webhook.QueueStats{}, fmt.Errorf("iterating item counts: %w", err)
	}

	return stats, nil
}

// PendingRetries counts Pending items of an integration with at least one failed attempt
func (q *Queue) PendingRetries(ctx context.Context, integrationID string) (int64, error) {
	query := "SELECT COUNT(*) FROM webhook_queue WHERE integration_id = $1 AND status = 'pending' AND attempts > 0"

	var n int64
	if err := q.DB.QueryRowContext(ctx, query, integrationID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting pending retries: %w", err)
	}
	return n, nil
}

// CleanupCompleted deletes Completed items finished before the horizon
func (q *Queue) CleanupCompleted(ctx context.Context, before time.Time) (int64, error) {
	query := "DELETE FROM webhook_queue WHERE status = 'completed' AND completed_at < $1"

	n, err := q.exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("deleting completed items: %w", err)
	}
	return n, nil
}

/* RecoverStale counts every item stuck in Processing since before claimedBefore as a failed attempt
 * The whole sweep is one UPDATE; right-hand sides see the pre-update row, RETURNING sees the new one
 */
func (q *Queue) RecoverStale(ctx context.Context, claimedBefore time.Time, now time.Time) ([]webhook.Recovered, error) {
	query := `
		UPDATE webhook_queue
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
			next_attempt_at = $2,
			last_error = $3,
			error_history = error_history || jsonb_build_array(jsonb_build_object('attempt', attempts + 1, 'error', $3::text, 'at', $2::timestamptz)),
			claimed_at = NULL,
			updated_at = $2
		WHERE status = 'processing' AND claimed_at < $1
		RETURNING id, integration_id, tenant_id, attempts, status
	`

	rows, err := q.DB.QueryContext(ctx, query, claimedBefore, now, webhook.StaleClaimError)
	if err != nil {
		return nil, fmt.Errorf("recovering stale items: %w", err)
	}
	defer rows.Close()

	var recovered []webhook.Recovered
	for rows.Next() {
		var (
			r      webhook.Recovered
			status string
		)
		if err := rows.Scan(&r.ID, &r.IntegrationID, &r.TenantID, &r.Attempts, &status); err != nil {
			return nil, fmt.Errorf("scanning recovered item: %w", err)
		}
		r.Terminal = webhook.NewStatus(status) == webhook.Failed
		recovered = append(recovered, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating recovered items: %w", err)
	}
	return recovered, nil
}

// Close closes the database connection
func (q *Queue) Close(ctx context.Context) error {
	if q.DB != nil {
		return q.DB.Close()
	}
	return nil
}

func (q *Queue) exec(ctx context.Context, query string, args ...any) (int64, error) {
	result, err := q.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(s scanner) (webhook.QueueItem, error) {
	var (
		item        webhook.QueueItem
		topic       string
		status      string
		history     []byte
		claimedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := s.Scan(
		&item.ID,
		&item.IntegrationID,
		&item.TenantID,
		&topic,
		&item.Payload,
		&item.IdempotencyKey,
		&status,
		&item.Attempts,
		&item.MaxAttempts,
		&item.NextAttemptAt,
		&item.LastError,
		&history,
		&item.CreatedAt,
		&item.UpdatedAt,
		&claimedAt,
		&completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return webhook.QueueItem{}, err
	}
	if err != nil {
		return webhook.QueueItem{}, fmt.Errorf("scanning item: %w", err)
	}

	item.Topic = webhook.NewTopic(topic)
	item.Status = webhook.NewStatus(status)
	if claimedAt.Valid {
		t := claimedAt.Time
		item.ClaimedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		item.CompletedAt = &t
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &item.Errors); err != nil {
			return webhook.QueueItem{}, fmt.Errorf("decoding error history: %w", err)
		}
	}
	return item, nil
}

// historyEntry encodes one error entry as a single-element JSON array for appending with ||
func historyEntry(entry webhook.ErrorEntry) (string, error) {
	b, err := json.Marshal([]webhook.ErrorEntry{entry})
	if err != nil {
		return "", fmt.Errorf("encoding error history: %w", err)
	}
	return string(b), nil
}
