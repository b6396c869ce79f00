package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordersWithoutProviders(t *testing.T) {
	UsePrometheus(nil)
	ctx := context.Background()

	// Must be safe before InitMetrics and without a collector.
	RecordRequest(ctx, "query")
	RecordMessageSent(ctx, nil)
	RecordUpstreamRequest(ctx, nil, time.Second)
	RecordCacheHit(ctx)
	SessionStarted(ctx)
	RecordPoll(ctx)
	SessionFinished(ctx, "arrived")

	if IsEnabled() {
		t.Error("OTEL metrics should be disabled when InitMetrics was not called")
	}
}

func TestPrometheusMirror(t *testing.T) {
	c := NewCollector()
	UsePrometheus(c)
	defer UsePrometheus(nil)
	ctx := context.Background()

	RecordRequest(ctx, "query")
	RecordRequest(ctx, "query")
	RecordRequest(ctx, "help")
	RecordMessageSent(ctx, errors.New("blocked by user"))
	RecordUpstreamRequest(ctx, nil, 200*time.Millisecond)
	RecordCacheHit(ctx)
	SessionStarted(ctx)
	SessionStarted(ctx)
	RecordPoll(ctx)
	SessionFinished(ctx, "arrived")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"query requests", testutil.ToFloat64(c.Requests.WithLabelValues("query")), 2},
		{"help requests", testutil.ToFloat64(c.Requests.WithLabelValues("help")), 1},
		{"failed sends", testutil.ToFloat64(c.MessagesSent.WithLabelValues("error")), 1},
		{"upstream ok", testutil.ToFloat64(c.UpstreamRequests.WithLabelValues("ok")), 1},
		{"cache hits", testutil.ToFloat64(c.CacheHits), 1},
		{"active sessions", testutil.ToFloat64(c.ActiveSessions), 1},
		{"polls", testutil.ToFloat64(c.Polls), 1},
		{"arrived outcomes", testutil.ToFloat64(c.SessionOutcomes.WithLabelValues("arrived")), 1},
	}
	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if lastUpstreamSuccess.Load() == 0 {
		t.Error("successful upstream request should update the last success timestamp")
	}
}

func TestCollectorHandler(t *testing.T) {
	c := NewCollector()
	c.Polls.Add(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "antalyabus_tracking_polls_total 3") {
		t.Errorf("metrics output missing polls counter:\n%s", rec.Body.String())
	}
}
