package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/marcelsud/commerce-webhooks/webhook"
)

// QueueStatter reports queue counts by status
type QueueStatter interface {
	Stats(ctx context.Context, since time.Time) (webhook.QueueStats, error)
}

// WorkerCounter reports how many worker pool instances are alive
type WorkerCounter interface {
	Count(ctx context.Context) (int64, error)
}

// ExporterOptions configures an OTelExporter
type ExporterOptions struct {
	// Queue feeds the queue gauge; nil disables it
	Queue QueueStatter
	// QueueWindow is the window passed to Queue.Stats
	QueueWindow time.Duration
	// Workers feeds the active workers gauge; nil disables it
	Workers WorkerCounter
	// Registry replaces the default Prometheus registry, used by tests
	Registry *promclient.Registry
}

// OTelExporter provides OpenTelemetry metrics export following OTel standards
type OTelExporter struct {
	meterProvider *sdkmetric.MeterProvider
	handler       http.Handler
	opts          ExporterOptions

	// OTel meters and instruments
	meter              metric.Meter
	eventsCounter      metric.Int64Counter
	durationHistogram  metric.Float64Histogram
	queueItemsGauge    metric.Int64ObservableGauge
	activeWorkersGauge metric.Int64ObservableGauge
}

// NewOTelExporter creates a new OpenTelemetry metrics exporter with Prometheus format
func NewOTelExporter(opts ExporterOptions) (*OTelExporter, error) {
	if opts.QueueWindow <= 0 {
		opts.QueueWindow = DefaultWindow
	}

	var promOpts []prometheus.Option
	handler := promhttp.Handler()
	if opts.Registry != nil {
		promOpts = append(promOpts, prometheus.WithRegisterer(opts.Registry))
		handler = promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
	}

	exporter, err := prometheus.New(promOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	if opts.Registry == nil {
		otel.SetMeterProvider(meterProvider)
	}

	meter := meterProvider.Meter(
		"commerce-webhooks",
		metric.WithInstrumentationVersion("1.0.0"),
	)

	oe := &OTelExporter{
		meterProvider: meterProvider,
		handler:       handler,
		opts:          opts,
		meter:         meter,
	}

	if err := oe.registerInstruments(); err != nil {
		return nil, fmt.Errorf("registering instruments: %w", err)
	}

	return oe, nil
}

// registerInstruments creates and registers all OpenTelemetry metric instruments
func (oe *OTelExporter) registerInstruments() error {
	var err error

	oe.eventsCounter, err = oe.meter.Int64Counter(
		"webhook.events",
		metric.WithDescription("Webhook events by outcome"),
		metric.WithUnit("{events}"),
	)
	if err != nil {
		return fmt.Errorf("creating events counter: %w", err)
	}

	oe.durationHistogram, err = oe.meter.Float64Histogram(
		"webhook.processing.duration",
		metric.WithDescription("Handler processing time of completed events"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating duration histogram: %w", err)
	}

	if oe.opts.Queue != nil {
		oe.queueItemsGauge, err = oe.meter.Int64ObservableGauge(
			"webhook.queue.items",
			metric.WithDescription("Queue items by status over the stats window"),
			metric.WithUnit("{items}"),
			metric.WithInt64Callback(oe.observeQueue),
		)
		if err != nil {
			return fmt.Errorf("creating queue items gauge: %w", err)
		}
	}

	if oe.opts.Workers != nil {
		oe.activeWorkersGauge, err = oe.meter.Int64ObservableGauge(
			"webhook.workers.active",
			metric.WithDescription("Number of worker pool instances with a live heartbeat"),
			metric.WithUnit("{workers}"),
			metric.WithInt64Callback(oe.observeActiveWorkers),
		)
		if err != nil {
			return fmt.Errorf("creating active workers gauge: %w", err)
		}
	}

	return nil
}

// Observe counts a sample and records its duration when it is a completed event
func (oe *OTelExporter) Observe(ctx context.Context, s Sample) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", s.Kind.String()),
		attribute.String("integration.id", s.IntegrationID),
	}
	if s.ErrorClass != 0 {
		attrs = append(attrs, attribute.String("error.class", s.ErrorClass.String()))
	}
	oe.eventsCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if s.Kind == Processed {
		oe.durationHistogram.Record(ctx, float64(s.ProcessingTime.Milliseconds()), metric.WithAttributes(
			attribute.String("integration.id", s.IntegrationID),
		))
	}
}

// observeQueue is a callback that reports queue counts by status
func (oe *OTelExporter) observeQueue(ctx context.Context, observer metric.Int64Observer) error {
	stats, err := oe.opts.Queue.Stats(ctx, time.Now().Add(-oe.opts.QueueWindow))
	if err != nil {
		return err
	}

	counts := map[webhook.Status]int64{
		webhook.Pending:    stats.Pending,
		webhook.Processing: stats.Processing,
		webhook.Completed:  stats.Completed,
		webhook.Failed:     stats.Failed,
	}
	for status, n := range counts {
		observer.Observe(n, metric.WithAttributes(
			attribute.String("webhook.status", status.String()),
		))
	}

	return nil
}

// observeActiveWorkers is a callback that reports active worker counts
func (oe *OTelExporter) observeActiveWorkers(ctx context.Context, observer metric.Int64Observer) error {
	n, err := oe.opts.Workers.Count(ctx)
	if err != nil {
		return err
	}
	observer.Observe(n)
	return nil
}

// ServeHTTP serves Prometheus-formatted metrics on the given HTTP handler
func (oe *OTelExporter) ServeHTTP() http.Handler {
	return oe.handler
}

// Shutdown gracefully shuts down the meter provider
func (oe *OTelExporter) Shutdown(ctx context.Context) error {
	if oe.meterProvider != nil {
		return oe.meterProvider.Shutdown(ctx)
	}
	return nil
}
