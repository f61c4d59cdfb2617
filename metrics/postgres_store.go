package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresStore keeps buckets in the webhook_metrics table
type PostgresStore struct {
	DB *sql.DB
}

// NewPostgresStore creates a new PostgreSQL metric store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

// Increment adds a sample to its bucket with one upsert
func (p *PostgresStore) Increment(ctx context.Context, s Sample) error {
	var d Bucket
	d.Apply(s)

	query := `
		INSERT INTO webhook_metrics (integration_id, bucket_start, tenant_id, received, processed, failed, retried, duplicate, processing_time_ms, err_unauthorized, err_not_found, err_server, err_timeout, err_other)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (integration_id, bucket_start) DO UPDATE SET
			received = webhook_metrics.received + EXCLUDED.received,
			processed = webhook_metrics.processed + EXCLUDED.processed,
			failed = webhook_metrics.failed + EXCLUDED.failed,
			retried = webhook_metrics.retried + EXCLUDED.retried,
			duplicate = webhook_metrics.duplicate + EXCLUDED.duplicate,
			processing_time_ms = webhook_metrics.processing_time_ms + EXCLUDED.processing_time_ms,
			err_unauthorized = webhook_metrics.err_unauthorized + EXCLUDED.err_unauthorized,
			err_not_found = webhook_metrics.err_not_found + EXCLUDED.err_not_found,
			err_server = webhook_metrics.err_server + EXCLUDED.err_server,
			err_timeout = webhook_metrics.err_timeout + EXCLUDED.err_timeout,
			err_other = webhook_metrics.err_other + EXCLUDED.err_other
	`

	_, err := p.DB.ExecContext(ctx, query,
		s.IntegrationID,
		BucketStart(s.At),
		s.TenantID,
		d.Received,
		d.Processed,
		d.Failed,
		d.Retried,
		d.Duplicate,
		d.ProcessingTimeMs,
		d.Errors.Unauthorized,
		d.Errors.NotFound,
		d.Errors.ServerError,
		d.Errors.Timeout,
		d.Errors.Other,
	)
	if err != nil {
		return fmt.Errorf("incrementing metric bucket: %w", err)
	}
	return nil
}

// Range returns the buckets of an integration ordered by start
func (p *PostgresStore) Range(ctx context.Context, integrationID string, from, to time.Time) ([]Bucket, error) {
	query := "SELECT integration_id, tenant_id, bucket_start, received, processed, failed, retried, duplicate, processing_time_ms, err_unauthorized, err_not_found, err_server, err_timeout, err_other FROM webhook_metrics WHERE integration_id = $1 AND bucket_start >= $2 AND bucket_start <= $3 ORDER BY bucket_start"

	rows, err := p.DB.QueryContext(ctx, query, integrationID, from, to)
	if err != nil {
		return nil, fmt.Errorf("selecting metric buckets: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		err := rows.Scan(
			&b.IntegrationID,
			&b.TenantID,
			&b.Start,
			&b.Received,
			&b.Processed,
			&b.Failed,
			&b.Retried,
			&b.Duplicate,
			&b.ProcessingTimeMs,
			&b.Errors.Unauthorized,
			&b.Errors.NotFound,
			&b.Errors.ServerError,
			&b.Errors.Timeout,
			&b.Errors.Other,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning metric bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating metric buckets: %w", err)
	}

	return buckets, nil
}
