//go:build !integration

package metrics

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_Increment_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{DB: db}
	at := time.Date(2024, 1, 1, 12, 42, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (integration_id, bucket_start) DO UPDATE SET`)).
		WithArgs("int-1", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), "tenant-1",
			0, 1, 0, 0, 0, 250, 0, 0, 0, 0, 0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = store.Increment(context.Background(), Sample{
		IntegrationID:  "int-1",
		TenantID:       "tenant-1",
		Kind:           Processed,
		ProcessingTime: 250 * time.Millisecond,
		At:             at,
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Range_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := &PostgresStore{DB: db}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rows := sqlmock.NewRows([]string{"integration_id", "tenant_id", "bucket_start", "received", "processed", "failed", "retried", "duplicate", "processing_time_ms", "err_unauthorized", "err_not_found", "err_server", "err_timeout", "err_other"}).
		AddRow("int-1", "tenant-1", from, 10, 9, 1, 2, 3, 900, 1, 0, 0, 0, 0).
		AddRow("int-1", "tenant-1", from.Add(time.Hour), 5, 5, 0, 0, 0, 500, 0, 0, 0, 0, 0)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM webhook_metrics WHERE integration_id = $1 AND bucket_start >= $2 AND bucket_start <= $3`)).
		WithArgs("int-1", from, to).
		WillReturnRows(rows)

	buckets, err := store.Range(context.Background(), "int-1", from, to)

	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(10), buckets[0].Received)
	assert.Equal(t, int64(1), buckets[0].Errors.Unauthorized)
	assert.Equal(t, int64(500), buckets[1].ProcessingTimeMs)
	require.NoError(t, mock.ExpectationsWereMet())
}
