package payload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/marcelsud/commerce-webhooks/webhook"
)

/* Payload is the closed set of event bodies, one variant per topic
 * The unexported marker keeps the set closed to this package, so a type
 * switch over the variants in this package is exhaustive
 */
type Payload interface {
	Topic() webhook.Topic
	isPayload()
}

// LineItem is one order line
type LineItem struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	VariantID int64  `json:"variant_id"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

// Order is the order document shared by the order topics
type Order struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	TotalPrice        string     `json:"total_price"`
	Currency          string     `json:"currency"`
	LineItems         []LineItem `json:"line_items"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	CancelledAt       *time.Time `json:"cancelled_at"`
}

// Variant is one sellable variant of a product
type Variant struct {
	ID                int64  `json:"id"`
	SKU               string `json:"sku"`
	Price             string `json:"price"`
	InventoryQuantity int    `json:"inventory_quantity"`
}

// Product is the product document
type Product struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Handle      string    `json:"handle"`
	Status      string    `json:"status"`
	Vendor      string    `json:"vendor"`
	ProductType string    `json:"product_type"`
	Variants    []Variant `json:"variants"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CustomerRef identifies a customer in privacy requests
type CustomerRef struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type OrderCreatedPayload struct{ Order }

type OrderUpdatedPayload struct{ Order }

type ProductUpdatedPayload struct{ Product }

type ProductDeletedPayload struct {
	ID int64 `json:"id"`
}

// AppUninstalledPayload is the shop that removed the app
type AppUninstalledPayload struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Domain          string `json:"domain"`
	MyshopifyDomain string `json:"myshopify_domain"`
}

type CustomerDataRequestPayload struct {
	ShopID          int64       `json:"shop_id"`
	ShopDomain      string      `json:"shop_domain"`
	Customer        CustomerRef `json:"customer"`
	OrdersRequested []int64     `json:"orders_requested"`
	DataRequest     struct {
		ID int64 `json:"id"`
	} `json:"data_request"`
}

type CustomerRedactPayload struct {
	ShopID         int64       `json:"shop_id"`
	ShopDomain     string      `json:"shop_domain"`
	Customer       CustomerRef `json:"customer"`
	OrdersToRedact []int64     `json:"orders_to_redact"`
}

type ShopRedactPayload struct {
	ShopID     int64  `json:"shop_id"`
	ShopDomain string `json:"shop_domain"`
}

func (OrderCreatedPayload) Topic() webhook.Topic        { return webhook.OrderCreated }
func (OrderUpdatedPayload) Topic() webhook.Topic        { return webhook.OrderUpdated }
func (ProductUpdatedPayload) Topic() webhook.Topic      { return webhook.ProductUpdated }
func (ProductDeletedPayload) Topic() webhook.Topic      { return webhook.ProductDeleted }
func (AppUninstalledPayload) Topic() webhook.Topic      { return webhook.AppUninstalled }
func (CustomerDataRequestPayload) Topic() webhook.Topic { return webhook.CustomerDataRequest }
func (CustomerRedactPayload) Topic() webhook.Topic      { return webhook.CustomerRedact }
func (ShopRedactPayload) Topic() webhook.Topic          { return webhook.ShopRedact }

func (OrderCreatedPayload) isPayload()        {}
func (OrderUpdatedPayload) isPayload()        {}
func (ProductUpdatedPayload) isPayload()      {}
func (ProductDeletedPayload) isPayload()      {}
func (AppUninstalledPayload) isPayload()      {}
func (CustomerDataRequestPayload) isPayload() {}
func (CustomerRedactPayload) isPayload()      {}
func (ShopRedactPayload) isPayload()          {}

// Parse decodes and validates the body of an event for its topic
func Parse(topic webhook.Topic, data []byte) (Payload, error) {
	switch topic {
	case webhook.OrderCreated:
		return parseAs(data, func(p OrderCreatedPayload) error { return requireID("order", p.ID) })
	case webhook.OrderUpdated:
		return parseAs(data, func(p OrderUpdatedPayload) error { return requireID("order", p.ID) })
	case webhook.ProductUpdated:
		return parseAs(data, func(p ProductUpdatedPayload) error { return requireID("product", p.ID) })
	case webhook.ProductDeleted:
		return parseAs(data, func(p ProductDeletedPayload) error { return requireID("product", p.ID) })
	case webhook.AppUninstalled:
		return parseAs(data, func(p AppUninstalledPayload) error { return requireID("shop", p.ID) })
	case webhook.CustomerDataRequest:
		return parseAs(data, func(p CustomerDataRequestPayload) error { return requireShop(p.ShopID, p.ShopDomain) })
	case webhook.CustomerRedact:
		return parseAs(data, func(p CustomerRedactPayload) error { return requireShop(p.ShopID, p.ShopDomain) })
	case webhook.ShopRedact:
		return parseAs(data, func(p ShopRedactPayload) error { return requireShop(p.ShopID, p.ShopDomain) })
	default:
		return nil, fmt.Errorf("unsupported topic: %s", topic)
	}
}

func parseAs[T Payload](data []byte, check func(T) error) (Payload, error) {
	var p T
	if err := decode(data, &p); err != nil {
		return nil, err
	}
	if err := check(p); err != nil {
		return nil, fmt.Errorf("validating payload: %w", err)
	}
	return p, nil
}

func decode(data []byte, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("payload is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}
	return nil
}

func requireID(kind string, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%s id is required", kind)
	}
	return nil
}

func requireShop(shopID int64, shopDomain string) error {
	if shopID <= 0 && shopDomain == "" {
		return fmt.Errorf("shop_id or shop_domain is required")
	}
	return nil
}
