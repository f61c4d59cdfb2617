package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/marcelsud/commerce-webhooks/integration"
	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/idempotency"
	"github.com/marcelsud/commerce-webhooks/webhook/payload"
	"github.com/marcelsud/commerce-webhooks/webhook/signature"
	"github.com/marcelsud/commerce-webhooks/webhook/worker"
)

const (
	DefaultFreshnessWindow = 5 * time.Minute
	DefaultInlineTimeout   = 3 * time.Second
)

// Response messages
const (
	MsgMissingHeaders   = "Missing required headers"
	MsgUnsupportedTopic = "Unsupported topic"
	MsgMissingBody      = "Raw request body unavailable"
	MsgBodyTooLarge     = "Payload too large"
	MsgUnreadableBody   = "Request body could not be read"
	MsgUnknownShop      = "Unknown integration"
	MsgResolveFailed    = "Integration lookup failed"
	MsgMissingSecret    = "Integration secret not configured"
	MsgInvalidSignature = "Invalid signature"
	MsgInvalidPayload   = "Invalid payload"
	MsgTooOld           = "Event too old, ignored"
	MsgDuplicate        = "Already processed"
	MsgQueued           = "Queued for processing"
	MsgProcessed        = "Processed"
	MsgProcessedErrors  = "Processed with errors"
)

/* Request is one delivery as received over HTTP
 * Body must be the exact bytes received; nil means the transport could
 * not provide them
 */
type Request struct {
	Topic       webhook.Topic
	ShopDomain  string
	Signature   string
	WebhookID   string
	TriggeredAt string
	Body        []byte
}

// Response is what the platform is answered
type Response struct {
	StatusCode int                    `json:"-"`
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	QueueID    string                 `json:"queue_id,omitempty"`
	Mode       webhook.ProcessingMode `json:"-"`
	// IntegrationID is set once the shop domain resolved, for request logs
	IntegrationID string `json:"-"`
}

// UseCase is the ingest operation the HTTP layer calls
type UseCase interface {
	Ingest(ctx context.Context, req Request) Response
}

// Resolver finds the active integration of a shop
type Resolver interface {
	Resolve(ctx context.Context, shopDomain string) (integration.Integration, error)
}

// Deduplicator is the idempotency ledger as seen by ingest
type Deduplicator interface {
	Check(ctx context.Context, integrationID, key string) idempotency.CheckResult
	Record(ctx context.Context, e idempotency.Entry)
}

// Config tunes the ingest gates
type Config struct {
	FreshnessWindow time.Duration
	InlineTimeout   time.Duration
	// MaxAttempts is stored on every queued item, for sweeps that run without a retry policy
	MaxAttempts int
}

/* Service accepts platform deliveries
 * Uses pointer semantics as it's an API, not data
 */
type Service struct {
	resolver Resolver
	ledger   Deduplicator
	queue    webhook.Enqueuer
	handler  webhook.Handler
	recorder worker.Recorder
	cfg      Config
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the time source, used by tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new ingest service with dependency injection
func NewService(resolver Resolver, ledger Deduplicator, queue webhook.Enqueuer, handler webhook.Handler, recorder worker.Recorder, cfg Config, logger zerolog.Logger, opts ...Option) *Service {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.InlineTimeout <= 0 {
		cfg.InlineTimeout = DefaultInlineTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = webhook.DefaultMaxAttempts
	}
	s := &Service{
		resolver: resolver,
		ledger:   ledger,
		queue:    queue,
		handler:  handler,
		recorder: recorder,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

/* Ingest runs the gates in order: headers, raw body, integration,
 * signature, freshness, duplicate check, then enqueue with inline
 * fallback. Anything past the signature gate is answered 200.
 */
func (s *Service) Ingest(ctx context.Context, req Request) Response {
	if strings.TrimSpace(req.ShopDomain) == "" || strings.TrimSpace(req.Signature) == "" {
		return reject(http.StatusBadRequest, MsgMissingHeaders)
	}
	if err := req.Topic.Validate(); err != nil {
		return reject(http.StatusBadRequest, MsgUnsupportedTopic)
	}
	if req.Body == nil {
		s.logger.Error().Str("shop_domain", req.ShopDomain).Msg("raw body unavailable, check the HTTP body reader")
		return reject(http.StatusInternalServerError, MsgMissingBody)
	}

	in, err := s.resolver.Resolve(ctx, req.ShopDomain)
	if errors.Is(err, integration.ErrNotFound) {
		s.logger.Warn().Str("shop_domain", req.ShopDomain).Msg("delivery for unknown integration")
		return reject(http.StatusNotFound, MsgUnknownShop)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("shop_domain", req.ShopDomain).Msg("resolving integration")
		return reject(http.StatusInternalServerError, MsgResolveFailed)
	}
	if strings.TrimSpace(in.Secret) == "" {
		s.logger.Error().Str("integration_id", in.ID).Msg("integration has no shared secret")
		return s.withIntegration(in, reject(http.StatusInternalServerError, MsgMissingSecret))
	}

	if !signature.Verify(req.Body, req.Signature, in.Secret) {
		s.logger.Warn().
			Str("event", "security").
			Str("shop_domain", req.ShopDomain).
			Str("integration_id", in.ID).
			Str("topic", req.Topic.String()).
			Msg("signature verification failed")
		s.record(ctx, in, metrics.Failed, 0, metrics.Unauthorized)
		return s.withIntegration(in, reject(http.StatusUnauthorized, MsgInvalidSignature))
	}

	if _, err := payload.Parse(req.Topic, req.Body); err != nil {
		s.logger.Warn().Err(err).Str("integration_id", in.ID).Str("topic", req.Topic.String()).Msg("invalid payload")
		return s.withIntegration(in, reject(http.StatusBadRequest, MsgInvalidPayload))
	}
	meta, err := payload.ExtractMeta(req.Body)
	if err != nil {
		s.logger.Warn().Err(err).Str("integration_id", in.ID).Msg("reading event metadata")
		return s.withIntegration(in, reject(http.StatusBadRequest, MsgInvalidPayload))
	}

	now := s.now().UTC()
	eventTime := s.eventTime(meta, req.TriggeredAt)
	if !eventTime.IsZero() && now.Sub(eventTime) > s.cfg.FreshnessWindow {
		s.logger.Info().
			Str("integration_id", in.ID).
			Str("topic", req.Topic.String()).
			Time("event_time", eventTime).
			Msg("stale event ignored")
		s.record(ctx, in, metrics.Duplicate, 0, 0)
		return s.withIntegration(in, accept(MsgTooOld))
	}

	sourceID := sourceEventID(meta, req)
	key := idempotency.Derive(sourceID, req.Topic, eventTime)
	if check := s.ledger.Check(ctx, in.ID, key); check.IsDuplicate {
		s.logger.Info().
			Str("integration_id", in.ID).
			Str("idempotency_key", key).
			Time("original", check.OriginalTimestamp).
			Msg("duplicate delivery")
		s.record(ctx, in, metrics.Duplicate, 0, 0)
		return s.withIntegration(in, accept(MsgDuplicate))
	}

	s.record(ctx, in, metrics.Received, 0, 0)

	ev := webhook.InboundEvent{
		IntegrationID:  in.ID,
		TenantID:       in.TenantID,
		Topic:          req.Topic,
		Payload:        req.Body,
		SourceEventID:  sourceID,
		EventTimestamp: eventTime,
		ReceivedAt:     now,
	}
	entry := idempotency.Entry{
		IntegrationID: in.ID,
		Key:           key,
		SourceEventID: sourceID,
		Topic:         req.Topic,
	}

	item := webhook.NewQueueItem(ev, key, now)
	item.MaxAttempts = s.cfg.MaxAttempts
	id, err := s.queue.Enqueue(ctx, item)
	if err == nil {
		entry.StatusCode = http.StatusOK
		entry.Note = idempotency.NoteQueued
		s.ledger.Record(ctx, entry)

		resp := accept(MsgQueued)
		resp.QueueID = id
		resp.Mode = webhook.Queued
		return s.withIntegration(in, resp)
	}

	s.logger.Warn().Err(err).
		Str("integration_id", in.ID).
		Str("topic", req.Topic.String()).
		Msg("queue unavailable, processing inline")
	return s.withIntegration(in, s.inline(ctx, in, ev, entry))
}

// inline processes the event on the request path when it could not be queued
func (s *Service) inline(ctx context.Context, in integration.Integration, ev webhook.InboundEvent, entry idempotency.Entry) Response {
	item := webhook.NewQueueItem(ev, entry.Key, ev.ReceivedAt)
	start := s.now()
	res := worker.Execute(ctx, s.handler, webhook.DeliveryFor(item), s.cfg.InlineTimeout)
	elapsed := s.now().Sub(start)

	resp := accept(MsgProcessed)
	resp.Mode = webhook.Inline
	if res.Success {
		entry.Processed = true
		entry.StatusCode = http.StatusOK
		entry.Note = idempotency.NoteProcessed
		s.record(ctx, in, metrics.Processed, elapsed, 0)
	} else {
		entry.StatusCode = http.StatusInternalServerError
		entry.Note = res.Error
		s.record(ctx, in, metrics.Failed, 0, metrics.Classify(res.Error))
		s.logger.Error().
			Str("integration_id", in.ID).
			Str("topic", ev.Topic.String()).
			Str("error", res.Error).
			Msg("inline processing failed")
		resp.Message = MsgProcessedErrors
	}
	s.ledger.Record(ctx, entry)
	return resp
}

// eventTime is the embedded timestamp, else the platform trigger header
func (s *Service) eventTime(meta payload.Meta, triggeredAt string) time.Time {
	if meta.HasTimestamp() {
		return meta.Timestamp
	}
	if triggeredAt == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, triggeredAt)
	if err != nil {
		s.logger.Debug().Err(err).Str("triggered_at", triggeredAt).Msg("ignoring unparsable trigger time")
		return time.Time{}
	}
	return ts.UTC()
}

// sourceEventID is the resource id, else the delivery id, else a digest of the body
func sourceEventID(meta payload.Meta, req Request) string {
	if meta.SourceID != "" {
		return meta.SourceID
	}
	if req.WebhookID != "" {
		return req.WebhookID
	}
	sum := sha256.Sum256(req.Body)
	return "body-" + hex.EncodeToString(sum[:])[:16]
}

func (s *Service) record(ctx context.Context, in integration.Integration, kind metrics.Kind, elapsed time.Duration, class metrics.ErrorClass) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ctx, metrics.Sample{
		IntegrationID:  in.ID,
		TenantID:       in.TenantID,
		Kind:           kind,
		ProcessingTime: elapsed,
		ErrorClass:     class,
	})
}

func (s *Service) withIntegration(in integration.Integration, resp Response) Response {
	resp.IntegrationID = in.ID
	return resp
}

func reject(status int, msg string) Response {
	return Response{StatusCode: status, Success: false, Message: msg}
}

func accept(msg string) Response {
	return Response{StatusCode: http.StatusOK, Success: true, Message: msg}
}
