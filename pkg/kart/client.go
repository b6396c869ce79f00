package kart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"antalyabus/pkg/metrics"
	"antalyabus/pkg/otel"
	"antalyabus/pkg/parser"
	"antalyabus/pkg/types"

	"github.com/bluele/gcache"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultRegion = "026"

	closestBusPath = "/bus/closest"
	cacheSize      = 512
	maxRetries     = 3
)

// StatusError is a non-200 response from the upstream API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API returned status %d: %s", e.StatusCode, e.Body)
}

// Client queries the closest-buses endpoint. Responses are cached per stop
// for a short TTL so that concurrent sessions on one stop share a request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	region     string
	parser     *parser.JSONParser
	cache      gcache.Cache
	backoff    func() backoff.BackOff
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewClient returns a client for baseURL. A zero cacheTTL disables caching.
func NewClient(baseURL, region string, timeout, cacheTTL time.Duration, logger *slog.Logger) *Client {
	if region == "" {
		region = DefaultRegion
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		region:  region,
		parser:  parser.NewJSONParser(),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 250 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 10 * time.Second
			return backoff.WithMaxRetries(b, maxRetries)
		},
		logger: logger,
		tracer: otelapi.Tracer("kart-client"),
	}
	if cacheTTL > 0 {
		c.cache = gcache.New(cacheSize).LRU().Expiration(cacheTTL).Build()
	}
	return c
}

// FetchClosestBuses returns the buses approaching stopID. Server errors and
// network failures are retried with exponential backoff; 4xx responses are not.
func (c *Client) FetchClosestBuses(ctx context.Context, stopID string) (*types.ClosestBuses, error) {
	ctx, span := c.tracer.Start(ctx, "kart.fetch_closest_buses",
		trace.WithAttributes(
			attribute.String("stop_id", stopID),
			attribute.String("region", c.region),
		),
	)
	defer span.End()

	if c.cache != nil {
		if cached, err := c.cache.Get(stopID); err == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			metrics.RecordCacheHit(ctx)
			return cached.(*types.ClosestBuses), nil
		}
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	requestURL := c.requestURL(stopID)
	span.SetAttributes(attribute.String("http.url", requestURL))

	attempt := 0
	start := time.Now()
	body, err := backoff.RetryNotifyWithData(
		func() ([]byte, error) {
			attempt++
			return c.get(ctx, requestURL)
		},
		backoff.WithContext(c.backoff(), ctx),
		func(err error, wait time.Duration) {
			c.logger.Warn("Retrying closest-buses request",
				"stop_id", stopID, "attempt", attempt, "wait", wait, "error", err)
		},
	)
	metrics.RecordUpstreamRequest(ctx, err, time.Since(start))
	span.SetAttributes(attribute.Int("http.attempts", attempt))

	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			otel.RecordError(span, err, otel.ErrorTypeHTTP, statusErr.StatusCode >= 500)
		} else {
			otel.RecordError(span, err, otel.ErrorTypeNetwork, true)
		}
		return nil, err
	}

	result, err := c.parser.ParseClosestBuses(ctx, stopID, body)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, true)
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(stopID, result); err != nil {
			c.logger.Debug("Failed to cache closest buses", "stop_id", stopID, "error", err)
		}
	}

	span.SetAttributes(attribute.Int("buses_count", len(result.Buses)))
	otel.SetSpanOk(span)
	return result, nil
}

func (c *Client) requestURL(stopID string) string {
	q := url.Values{}
	q.Set("region", c.region)
	q.Set("busStopId", stopID)
	return c.baseURL + closestBusPath + "?" + q.Encode()
}

func (c *Client) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", "antalyabus/1.0.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		if resp.StatusCode < 500 {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}
	return body, nil
}
