package dispatch

import (
	"context"

	"github.com/marcelsud/commerce-webhooks/webhook/payload"
	"github.com/rs/zerolog"
)

// LogHandlers acknowledges every event after logging it
type LogHandlers struct {
	logger zerolog.Logger
}

// NewLogHandlers creates handlers that only log
func NewLogHandlers(logger zerolog.Logger) *LogHandlers {
	return &LogHandlers{logger: logger.With().Str("component", "handlers").Logger()}
}

func (h *LogHandlers) event(src Source, topic string) *zerolog.Event {
	return h.logger.Info().
		Str("topic", topic).
		Str("tenant_id", src.TenantID).
		Str("integration_id", src.IntegrationID).
		Int("attempt", src.Attempt)
}

func (h *LogHandlers) OrderCreated(ctx context.Context, src Source, p payload.OrderCreatedPayload) error {
	h.event(src, p.Topic().String()).Int64("order_id", p.ID).Str("total_price", p.TotalPrice).Int("line_items", len(p.LineItems)).Msg("order created")
	return nil
}

func (h *LogHandlers) OrderUpdated(ctx context.Context, src Source, p payload.OrderUpdatedPayload) error {
	h.event(src, p.Topic().String()).Int64("order_id", p.ID).Str("financial_status", p.FinancialStatus).Msg("order updated")
	return nil
}

func (h *LogHandlers) ProductUpdated(ctx context.Context, src Source, p payload.ProductUpdatedPayload) error {
	h.event(src, p.Topic().String()).Int64("product_id", p.ID).Int("variants", len(p.Variants)).Msg("product updated")
	return nil
}

func (h *LogHandlers) ProductDeleted(ctx context.Context, src Source, p payload.ProductDeletedPayload) error {
	h.event(src, p.Topic().String()).Int64("product_id", p.ID).Msg("product deleted")
	return nil
}

func (h *LogHandlers) AppUninstalled(ctx context.Context, src Source, p payload.AppUninstalledPayload) error {
	h.event(src, p.Topic().String()).Str("shop_domain", p.MyshopifyDomain).Msg("app uninstalled")
	return nil
}

func (h *LogHandlers) CustomerDataRequest(ctx context.Context, src Source, p payload.CustomerDataRequestPayload) error {
	h.event(src, p.Topic().String()).Int64("customer_id", p.Customer.ID).Int("orders", len(p.OrdersRequested)).Msg("customer data requested")
	return nil
}

func (h *LogHandlers) CustomerRedact(ctx context.Context, src Source, p payload.CustomerRedactPayload) error {
	h.event(src, p.Topic().String()).Int64("customer_id", p.Customer.ID).Int("orders", len(p.OrdersToRedact)).Msg("customer redaction requested")
	return nil
}

func (h *LogHandlers) ShopRedact(ctx context.Context, src Source, p payload.ShopRedactPayload) error {
	h.event(src, p.Topic().String()).Str("shop_domain", p.ShopDomain).Msg("shop redaction requested")
	return nil
}
