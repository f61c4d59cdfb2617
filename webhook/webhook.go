package webhook

import (
	"context"
	"time"
)

// DefaultMaxAttempts is the number of handler attempts before an item is terminal
const DefaultMaxAttempts = 5

/* InboundEvent is one verified platform notification
 * Uses value semantics as it represents data, not behavior
 */
type InboundEvent struct {
	IntegrationID  string
	TenantID       string
	Topic          Topic
	Payload        []byte
	SourceEventID  string
	EventTimestamp time.Time
	ReceivedAt     time.Time
}

// ErrorEntry is one failed attempt in a queue item's history
type ErrorEntry struct {
	Attempt int       `json:"attempt"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

/* QueueItem is one unit of deferred work
 * While Processing, the item belongs to the worker that claimed it
 */
type QueueItem struct {
	ID             string
	IntegrationID  string
	TenantID       string
	Topic          Topic
	Payload        []byte
	IdempotencyKey string
	Status         Status
	Attempts       int
	MaxAttempts    int
	NextAttemptAt  time.Time
	LastError      string
	Errors         []ErrorEntry
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClaimedAt      *time.Time
	CompletedAt    *time.Time
}

// NewQueueItem builds a pending item for an accepted event
func NewQueueItem(ev InboundEvent, idempotencyKey string, now time.Time) QueueItem {
	return QueueItem{
		IntegrationID:  ev.IntegrationID,
		TenantID:       ev.TenantID,
		Topic:          ev.Topic,
		Payload:        ev.Payload,
		IdempotencyKey: idempotencyKey,
		Status:         Pending,
		Attempts:       0,
		MaxAttempts:    DefaultMaxAttempts,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Delivery is what an external handler receives
type Delivery struct {
	Topic         Topic
	Payload       []byte
	TenantID      string
	IntegrationID string
	Attempt       int
}

// DeliveryFor returns the handler input for a queue item
func DeliveryFor(item QueueItem) Delivery {
	return Delivery{
		Topic:         item.Topic,
		Payload:       item.Payload,
		TenantID:      item.TenantID,
		IntegrationID: item.IntegrationID,
		Attempt:       item.Attempts + 1,
	}
}

// Result is the outcome reported by an external handler
type Result struct {
	Success bool
	Error   string
}

// Succeeded is the successful Result
func Succeeded() Result {
	return Result{Success: true}
}

// FailedWith builds a failed Result from an error
func FailedWith(err error) Result {
	if err == nil {
		return Result{Success: false, Error: "handler failed"}
	}
	return Result{Success: false, Error: err.Error()}
}

/* Handler applies an event to local records
 * Implementations must be idempotent: the queue guarantees a single
 * concurrent executor per item, not a single execution ever
 */
type Handler interface {
	Handle(ctx context.Context, d Delivery) Result
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, d Delivery) Result

// Handle calls f(ctx, d)
func (f HandlerFunc) Handle(ctx context.Context, d Delivery) Result {
	return f(ctx, d)
}
