package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus view of the bot's counters.
type Collector struct {
	reg *prometheus.Registry

	Requests     *prometheus.CounterVec // kind label
	MessagesSent *prometheus.CounterVec // status label

	UpstreamRequests *prometheus.CounterVec // status label
	UpstreamDuration prometheus.Histogram
	CacheHits        prometheus.Counter

	ActiveSessions  prometheus.Gauge
	Polls           prometheus.Counter
	SessionOutcomes *prometheus.CounterVec // outcome label: arrived|expired|cancelled
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antalyabus_requests_total",
			Help: "Incoming chat messages by kind.",
		}, []string{"kind"}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antalyabus_messages_sent_total",
			Help: "Outgoing chat messages by status.",
		}, []string{"status"}),
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antalyabus_upstream_requests_total",
			Help: "Closest-buses API requests by status.",
		}, []string{"status"}),
		UpstreamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "antalyabus_upstream_request_duration_seconds",
			Help:    "Duration of closest-buses API requests including retries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "antalyabus_upstream_cache_hits_total",
			Help: "Closest-buses responses served from cache.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "antalyabus_tracking_sessions_active",
			Help: "Number of running tracking sessions.",
		}),
		Polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "antalyabus_tracking_polls_total",
			Help: "Re-polls made by tracking sessions.",
		}),
		SessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antalyabus_tracking_outcomes_total",
			Help: "Finished tracking sessions by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		c.Requests, c.MessagesSent,
		c.UpstreamRequests, c.UpstreamDuration, c.CacheHits,
		c.ActiveSessions, c.Polls, c.SessionOutcomes,
		collectors.NewGoCollector(),
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics and /healthz on addr.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics server error", "error", err)
		}
	}()
	slog.Info("metrics listening", "addr", addr)
	return srv
}
