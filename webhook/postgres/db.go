package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

//go:embed schema.sql
var schema string

// Open connects with the default pool (25, 5, 5 min)
func Open(connectionString string) (*sql.DB, error) {
	return OpenWithPoolConfig(connectionString, 25, 5, 5)
}

/* OpenWithPoolConfig connects with a custom pool
 * maxOpenConns: maximum simultaneous connections (0 = unlimited)
 * maxIdleConns: idle connections kept in the pool
 * maxLifeMinutes: maximum minutes a connection may be reused
 */
func OpenWithPoolConfig(connectionString string, maxOpenConns, maxIdleConns, maxLifeMinutes int) (*sql.DB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	if maxIdleConns > 0 {
		db.SetMaxIdleConns(maxIdleConns)
	}
	if maxLifeMinutes > 0 {
		db.SetConnMaxLifetime(time.Duration(maxLifeMinutes) * time.Minute)
	}

	return db, nil
}

// Migrate creates every table the service uses. It is safe to run repeatedly.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// Drop removes every table, used by tests
func Drop(ctx context.Context, db *sql.DB) error {
	query := "DROP TABLE IF EXISTS webhook_queue, idempotency_records, webhook_metrics, integrations CASCADE"
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("dropping schema: %w", err)
	}
	return nil
}
