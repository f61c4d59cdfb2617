package dispatch

import (
	"context"
	"fmt"

	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/payload"
)

// Source identifies who an event belongs to and which attempt this is
type Source struct {
	TenantID      string
	IntegrationID string
	Attempt       int
}

/* Handlers applies each kind of event to local records
 * One method per topic, so adding a topic breaks every implementation at compile time
 * Implementations must be idempotent: an event can be delivered more than once
 */
type Handlers interface {
	OrderCreated(ctx context.Context, src Source, p payload.OrderCreatedPayload) error
	OrderUpdated(ctx context.Context, src Source, p payload.OrderUpdatedPayload) error
	ProductUpdated(ctx context.Context, src Source, p payload.ProductUpdatedPayload) error
	ProductDeleted(ctx context.Context, src Source, p payload.ProductDeletedPayload) error
	AppUninstalled(ctx context.Context, src Source, p payload.AppUninstalledPayload) error
	CustomerDataRequest(ctx context.Context, src Source, p payload.CustomerDataRequestPayload) error
	CustomerRedact(ctx context.Context, src Source, p payload.CustomerRedactPayload) error
	ShopRedact(ctx context.Context, src Source, p payload.ShopRedactPayload) error
}

// Dispatcher is a webhook.Handler that parses a delivery and routes it by payload variant
type Dispatcher struct {
	handlers Handlers
}

// New creates a dispatcher over a set of typed handlers
func New(h Handlers) *Dispatcher {
	return &Dispatcher{handlers: h}
}

// Handle parses the payload and calls the handler for its topic
func (d *Dispatcher) Handle(ctx context.Context, del webhook.Delivery) webhook.Result {
	p, err := payload.Parse(del.Topic, del.Payload)
	if err != nil {
		return webhook.FailedWith(fmt.Errorf("parsing %s payload: %w", del.Topic, err))
	}

	src := Source{
		TenantID:      del.TenantID,
		IntegrationID: del.IntegrationID,
		Attempt:       del.Attempt,
	}

	if err := d.route(ctx, src, p); err != nil {
		return webhook.FailedWith(err)
	}
	return webhook.Succeeded()
}

func (d *Dispatcher) route(ctx context.Context, src Source, p payload.Payload) error {
	switch v := p.(type) {
	case payload.OrderCreatedPayload:
		return d.handlers.OrderCreated(ctx, src, v)
	case payload.OrderUpdatedPayload:
		return d.handlers.OrderUpdated(ctx, src, v)
	case payload.ProductUpdatedPayload:
		return d.handlers.ProductUpdated(ctx, src, v)
	case payload.ProductDeletedPayload:
		return d.handlers.ProductDeleted(ctx, src, v)
	case payload.AppUninstalledPayload:
		return d.handlers.AppUninstalled(ctx, src, v)
	case payload.CustomerDataRequestPayload:
		return d.handlers.CustomerDataRequest(ctx, src, v)
	case payload.CustomerRedactPayload:
		return d.handlers.CustomerRedact(ctx, src, v)
	case payload.ShopRedactPayload:
		return d.handlers.ShopRedact(ctx, src, v)
	default:
		return fmt.Errorf("no handler for payload %T", p)
	}
}
