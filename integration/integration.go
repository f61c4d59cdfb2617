package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned for unknown or inactive integrations
var ErrNotFound = errors.New("integration not found")

/* Integration is one connected shop of a tenant
 * Secret is the shared key the platform signs deliveries with
 */
type Integration struct {
	ID         string
	TenantID   string
	ShopDomain string
	Secret     string
	Active     bool
}

// Validate checks if the integration configuration is valid
func (i Integration) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if i.TenantID == "" {
		return fmt.Errorf("tenant_id cannot be empty for integration %s", i.ID)
	}
	if i.ShopDomain == "" {
		return fmt.Errorf("shop_domain cannot be empty for integration %s", i.ID)
	}
	if strings.ContainsAny(i.ShopDomain, " /") {
		return fmt.Errorf("shop_domain %q is not a host name for integration %s", i.ShopDomain, i.ID)
	}
	if strings.TrimSpace(i.Secret) == "" {
		return fmt.Errorf("secret cannot be empty for integration %s", i.ID)
	}
	return nil
}

// NormalizeDomain lowercases and trims a shop domain so lookups are case insensitive
func NormalizeDomain(shopDomain string) string {
	return strings.ToLower(strings.TrimSpace(shopDomain))
}

// Source looks integrations up by shop domain
type Source interface {
	// Get returns ErrNotFound when no integration has the domain
	Get(ctx context.Context, shopDomain string) (Integration, error)
}
