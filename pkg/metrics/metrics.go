package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"antalyabus/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	// meterProvider is the global meter provider
	meterProvider *sdkmetric.MeterProvider

	// Meter is the global meter for creating instruments
	Meter metric.Meter

	// lastUpstreamSuccess is the Unix time of the last successful closest-buses call
	lastUpstreamSuccess atomic.Int64

	// prom mirrors the counters into a Prometheus registry when set
	prom atomic.Pointer[Collector]
)

// InitMetrics initializes OpenTelemetry metrics with the configured exporter.
// Returns a shutdown function that should be called on application exit.
func InitMetrics() (func(), error) {
	if !otel.IsMetricsEnabled() {
		slog.Debug("OpenTelemetry metrics is disabled")
		return func() {}, nil
	}

	ctx := context.Background()

	cfg := otel.GetExporterConfig(otel.SignalMetrics)

	exporter, err := otel.NewMetricExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, using noop", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		slog.Warn("Failed to create resource, using noop", "error", err)
		return func() {}, nil
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(60*time.Second),
			),
		),
		sdkmetric.WithResource(res),
	)

	otelapi.SetMeterProvider(meterProvider)

	Meter = meterProvider.Meter(otel.ServiceName)

	if err := initializeInstruments(); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		Meter = nil
		return func() {}, nil
	}

	if err := registerRuntimeMetrics(); err != nil {
		slog.Warn("Failed to register runtime metrics", "error", err)
	}

	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
	}, nil
}

// registerRuntimeMetrics registers observable gauges for runtime metrics
func registerRuntimeMetrics() error {
	_, err := Meter.Int64ObservableGauge(
		"runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = Meter.Int64ObservableGauge(
		"kart.last_success.timestamp",
		metric.WithDescription("Unix timestamp of the last successful closest-buses request"),
		metric.WithUnit("s"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			if ts := lastUpstreamSuccess.Load(); ts > 0 {
				o.Observe(ts)
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = Meter.Int64ObservableGauge(
		"runtime.go.mem.heap_alloc",
		metric.WithDescription("Heap memory allocated"),
		metric.WithUnit("By"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			o.Observe(int64(m.HeapAlloc))
			return nil
		}),
	)
	if err != nil {
		return err
	}

	_, err = Meter.Int64ObservableCounter(
		"runtime.go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{gc}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			o.Observe(int64(m.NumGC))
			return nil
		}),
	)
	return err
}

// IsEnabled returns true if OTEL metrics collection is enabled
func IsEnabled() bool {
	return Meter != nil
}

// UsePrometheus mirrors all recorded values into c. Pass nil to stop.
func UsePrometheus(c *Collector) {
	prom.Store(c)
}

// RecordRequest counts an incoming chat message of the given kind.
func RecordRequest(ctx context.Context, kind string) {
	if IsEnabled() {
		BotRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	if c := prom.Load(); c != nil {
		c.Requests.WithLabelValues(kind).Inc()
	}
}

// RecordMessageSent counts an outgoing chat message.
func RecordMessageSent(ctx context.Context, err error) {
	status := statusLabel(err)
	if IsEnabled() {
		BotMessagesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
	if c := prom.Load(); c != nil {
		c.MessagesSent.WithLabelValues(status).Inc()
	}
}

// RecordUpstreamRequest records one closest-buses call.
func RecordUpstreamRequest(ctx context.Context, err error, d time.Duration) {
	status := statusLabel(err)
	if err == nil {
		lastUpstreamSuccess.Store(time.Now().Unix())
	}
	if IsEnabled() {
		attrs := metric.WithAttributes(attribute.String("status", status))
		KartRequestsTotal.Add(ctx, 1, attrs)
		KartRequestDuration.Record(ctx, d.Seconds(), attrs)
	}
	if c := prom.Load(); c != nil {
		c.UpstreamRequests.WithLabelValues(status).Inc()
		c.UpstreamDuration.Observe(d.Seconds())
	}
}

// RecordCacheHit counts a closest-buses response served from cache.
func RecordCacheHit(ctx context.Context) {
	if IsEnabled() {
		KartCacheHits.Add(ctx, 1)
	}
	if c := prom.Load(); c != nil {
		c.CacheHits.Inc()
	}
}

// SessionStarted marks a tracking session as running.
func SessionStarted(ctx context.Context) {
	if IsEnabled() {
		TrackingSessionsActive.Add(ctx, 1)
	}
	if c := prom.Load(); c != nil {
		c.ActiveSessions.Inc()
	}
}

// SessionFinished marks a tracking session as done with the given outcome.
func SessionFinished(ctx context.Context, outcome string) {
	if IsEnabled() {
		TrackingSessionsActive.Add(ctx, -1)
		TrackingOutcomesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
	if c := prom.Load(); c != nil {
		c.ActiveSessions.Dec()
		c.SessionOutcomes.WithLabelValues(outcome).Inc()
	}
}

// RecordPoll counts one re-poll of a tracking session.
func RecordPoll(ctx context.Context) {
	if IsEnabled() {
		TrackingPollsTotal.Add(ctx, 1)
	}
	if c := prom.Load(); c != nil {
		c.Polls.Inc()
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
