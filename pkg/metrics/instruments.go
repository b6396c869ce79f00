package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// Bot Metrics
var (
	// BotRequestsTotal counts incoming chat messages by kind
	BotRequestsTotal metric.Int64Counter

	// BotMessagesSent counts outgoing chat messages by status
	BotMessagesSent metric.Int64Counter
)

// Upstream (closest buses API) Metrics
var (
	// KartRequestsTotal counts closest-buses requests by status
	KartRequestsTotal metric.Int64Counter

	// KartRequestDuration measures closest-buses request duration, retries included
	KartRequestDuration metric.Float64Histogram

	// KartCacheHits counts responses served from the local cache
	KartCacheHits metric.Int64Counter
)

// Tracking Metrics
var (
	// TrackingSessionsActive tracks running tracking sessions
	TrackingSessionsActive metric.Int64UpDownCounter

	// TrackingPollsTotal counts re-polls made by tracking sessions
	TrackingPollsTotal metric.Int64Counter

	// TrackingOutcomesTotal counts finished sessions by outcome
	TrackingOutcomesTotal metric.Int64Counter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	BotRequestsTotal, err = Meter.Int64Counter(
		"bot.requests.total",
		metric.WithDescription("Incoming chat messages by kind"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	BotMessagesSent, err = Meter.Int64Counter(
		"bot.messages.sent",
		metric.WithDescription("Outgoing chat messages by status"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return err
	}

	KartRequestsTotal, err = Meter.Int64Counter(
		"kart.requests.total",
		metric.WithDescription("Closest-buses API requests by status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	KartRequestDuration, err = Meter.Float64Histogram(
		"kart.request.duration",
		metric.WithDescription("Duration of closest-buses API requests including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}

	KartCacheHits, err = Meter.Int64Counter(
		"kart.cache.hits",
		metric.WithDescription("Closest-buses responses served from cache"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	TrackingSessionsActive, err = Meter.Int64UpDownCounter(
		"tracking.sessions.active",
		metric.WithDescription("Number of running tracking sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	TrackingPollsTotal, err = Meter.Int64Counter(
		"tracking.polls.total",
		metric.WithDescription("Re-polls made by tracking sessions"),
		metric.WithUnit("{poll}"),
	)
	if err != nil {
		return err
	}

	TrackingOutcomesTotal, err = Meter.Int64Counter(
		"tracking.outcomes.total",
		metric.WithDescription("Finished tracking sessions by outcome"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return err
	}

	return nil
}
