package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"antalyabus/pkg/otel"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LokiSink pushes every event as one log line to Grafana Loki.
type LokiSink struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

func NewLokiSink(baseURL, username, password string) *LokiSink {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   10 * time.Second,
	}

	return &LokiSink{
		httpClient: client,
		baseURL:    baseURL,
		username:   username,
		password:   password,
		tracer:     otelapi.Tracer("loki-sink"),
	}
}

func (s *LokiSink) Publish(ctx context.Context, event Event) error {
	ctx, span := s.tracer.Start(ctx, "loki.publish_event",
		trace.WithAttributes(
			attribute.String("event.type", string(event.Type)),
			attribute.String("session_id", event.SessionID),
		),
	)
	defer span.End()

	line, err := json.Marshal(event)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	lokiReq := PushRequest{
		Streams: []Stream{
			{
				Stream: map[string]string{
					"job":     "antalyabus",
					"service": "bus-tracking",
					"event":   string(event.Type),
					"stop_id": event.StopID,
				},
				Values: [][]string{
					{strconv.FormatInt(ts.UnixNano(), 10), string(line)},
				},
			},
		},
	}

	reqBody, err := json.Marshal(lokiReq)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	url := fmt.Sprintf("%s/loki/api/v1/push", s.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "antalyabus/1.0.0")

	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	span.SetAttributes(
		attribute.Bool("auth.enabled", s.username != "" && s.password != ""),
		attribute.Int("request.size_bytes", len(reqBody)),
	)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeDelivery, true)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("Loki returned status %d", resp.StatusCode)
		otel.RecordError(span, err, otel.ErrorTypeDelivery, resp.StatusCode >= 500)
		return err
	}

	otel.SetSpanOk(span)
	return nil
}
