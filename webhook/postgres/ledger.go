package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
)

// LedgerStore is the PostgreSQL idempotency.Store
type LedgerStore struct {
	DB *sql.DB
}

// NewLedgerStore creates a ledger store over an open database
func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{DB: db}
}

// Lookup returns the live record for key
func (s *LedgerStore) Lookup(ctx context.Context, integrationID, key string, now time.Time) (idempotency.Entry, error) {
	query := "SELECT integration_id, idempotency_key, source_event_id, topic, processed, processed_at, status_code, note, created_at, expires_at FROM idempotency_records WHERE integration_id = $1 AND idempotency_key = $2 AND expires_at > $3"

	var (
		e           idempotency.Entry
		topic       string
		processedAt sql.NullTime
	)
	err := s.DB.QueryRowContext(ctx, query, integrationID, key, now).Scan(
		&e.IntegrationID,
		&e.Key,
		&e.SourceEventID,
		&topic,
		&e.Processed,
		&processedAt,
		&e.StatusCode,
		&e.Note,
		&e.CreatedAt,
		&e.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return idempotency.Entry{}, idempotency.ErrNotFound
	}
	if err != nil {
		return idempotency.Entry{}, fmt.Errorf("selecting idempotency record: %w", err)
	}

	e.Topic = webhook.NewTopic(topic)
	if processedAt.Valid {
		t := processedAt.Time
		e.ProcessedAt = &t
	}
	return e, nil
}

/* Save upserts a record in one statement
 * A live record keeps its creation and expiry times, an expired one is replaced
 */
func (s *LedgerStore) Save(ctx context.Context, e idempotency.Entry) error {
	query := `
		INSERT INTO idempotency_records (integration_id, idempotency_key, source_event_id, topic, processed, processed_at, status_code, note, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (integration_id, idempotency_key) DO UPDATE SET
			source_event_id = EXCLUDED.source_event_id,
			topic = EXCLUDED.topic,
			processed = EXCLUDED.processed,
			processed_at = EXCLUDED.processed_at,
			status_code = EXCLUDED.status_code,
			note = EXCLUDED.note,
			created_at = CASE WHEN idempotency_records.expires_at <= EXCLUDED.created_at THEN EXCLUDED.created_at ELSE idempotency_records.created_at END,
			expires_at = CASE WHEN idempotency_records.expires_at <= EXCLUDED.created_at THEN EXCLUDED.expires_at ELSE idempotency_records.expires_at END
	`

	var processedAt sql.NullTime
	if e.ProcessedAt != nil {
		processedAt = sql.NullTime{Time: *e.ProcessedAt, Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, query,
		e.IntegrationID,
		e.Key,
		e.SourceEventID,
		e.Topic.String(),
		e.Processed,
		processedAt,
		e.StatusCode,
		e.Note,
		e.CreatedAt,
		e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upserting idempotency record: %w", err)
	}
	return nil
}

// MarkProcessed flags a live record as processed
func (s *LedgerStore) MarkProcessed(ctx context.Context, integrationID, key string, statusCode int, note string, at time.Time) error {
	query := "UPDATE idempotency_records SET processed = TRUE, processed_at = $3, status_code = $4, note = $5 WHERE integration_id = $1 AND idempotency_key = $2 AND expires_at > $3"

	result, err := s.DB.ExecContext(ctx, query, integrationID, key, at, statusCode, note)
	if err != nil {
		return fmt.Errorf("marking idempotency record processed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if n == 0 {
		return idempotency.ErrNotFound
	}
	return nil
}

// DeleteExpired removes records past their expiry
func (s *LedgerStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := "DELETE FROM idempotency_records WHERE expires_at <= $1"

	result, err := s.DB.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired idempotency records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}
	return n, nil
}
