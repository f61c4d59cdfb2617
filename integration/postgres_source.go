package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresSource reads integrations from the integrations table
type PostgresSource struct {
	DB *sql.DB
}

// NewPostgresSource creates a new PostgreSQL integration source
func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{DB: db}
}

// Get retrieves an integration by shop domain
func (p *PostgresSource) Get(ctx context.Context, shopDomain string) (Integration, error) {
	query := "SELECT id, tenant_id, shop_domain, secret, active FROM integrations WHERE shop_domain = $1"

	var in Integration
	err := p.DB.QueryRowContext(ctx, query, NormalizeDomain(shopDomain)).Scan(
		&in.ID,
		&in.TenantID,
		&in.ShopDomain,
		&in.Secret,
		&in.Active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Integration{}, fmt.Errorf("%w: %s", ErrNotFound, shopDomain)
	}
	if err != nil {
		return Integration{}, fmt.Errorf("selecting integration: %w", err)
	}
	return in, nil
}

// Save inserts or updates an integration keyed by id
func (p *PostgresSource) Save(ctx context.Context, in Integration, now time.Time) error {
	if err := in.Validate(); err != nil {
		return fmt.Errorf("validating integration: %w", err)
	}

	query := `
		INSERT INTO integrations (id, tenant_id, shop_domain, secret, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET tenant_id = EXCLUDED.tenant_id, shop_domain = EXCLUDED.shop_domain, secret = EXCLUDED.secret, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
	`

	_, err := p.DB.ExecContext(ctx, query,
		in.ID,
		in.TenantID,
		NormalizeDomain(in.ShopDomain),
		in.Secret,
		in.Active,
		now,
	)
	if err != nil {
		return fmt.Errorf("saving integration: %w", err)
	}
	return nil
}
