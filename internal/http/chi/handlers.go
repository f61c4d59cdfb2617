package chi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/rs/zerolog"

	"github.com/marcelsud/commerce-webhooks/metrics"
	"github.com/marcelsud/commerce-webhooks/webhook"
	"github.com/marcelsud/commerce-webhooks/webhook/ingest"
	"github.com/marcelsud/commerce-webhooks/webhook/maintenance"
	"github.com/marcelsud/commerce-webhooks/webhook/redis"
	"github.com/marcelsud/commerce-webhooks/webhook/worker"
)

// RequestTimeout bounds every request, inline processing included
const RequestTimeout = 30 * time.Second

// Ticker runs one worker pass on demand
type Ticker interface {
	Tick(ctx context.Context) (worker.Report, error)
}

// Cleaner runs one maintenance pass on demand
type Cleaner interface {
	Run(ctx context.Context) (maintenance.Report, error)
}

// QueueStatter reports queue counts by status
type QueueStatter interface {
	Stats(ctx context.Context, since time.Time) (webhook.QueueStats, error)
}

// WorkerLister lists the live worker pool instances
type WorkerLister interface {
	ActiveWorkers(ctx context.Context) ([]redis.WorkerHeartbeat, error)
}

// HealthReporter computes the health view of an integration
type HealthReporter interface {
	Health(ctx context.Context, integrationID string, window time.Duration) (metrics.Health, error)
}

/* Services is everything the router exposes
 * Workers and Metrics are optional
 */
type Services struct {
	Ingest   ingest.UseCase
	Worker   Ticker
	Janitor  Cleaner
	Queue    QueueStatter
	Workers  WorkerLister
	Health   HealthReporter
	Metrics  http.Handler
	OpsToken string
}

// Handlers sets up the public webhook routes and the operational API
func Handlers(ctx context.Context, svc Services, logger zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(RequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	if svc.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", svc.Metrics)
	}

	// Platform deliveries, topic = resource/event
	r.Post("/webhooks/{resource}/{event}", postWebhook(svc.Ingest).ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Use(requireToken(svc.OpsToken))

		r.Post("/ops/queue/process", postProcessQueue(svc.Worker).ServeHTTP)
		r.Post("/ops/cleanup", postCleanup(svc.Janitor).ServeHTTP)
		r.Get("/ops/queue/stats", getQueueStats(svc.Queue, svc.Workers).ServeHTTP)
		r.Get("/integrations/{integration_id}/health", getIntegrationHealth(svc.Health).ServeHTTP)
	})

	return r
}

// requireToken enforces a bearer token; an empty token disables the check
func requireToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
