package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"antalyabus/pkg/otel"
	"antalyabus/pkg/types"

	"github.com/clbanning/mxj/v2"
	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmptyResponse is returned for a body that carries no object at all.
var ErrEmptyResponse = errors.New("empty closest-buses response")

type JSONParser struct {
	tracer trace.Tracer
}

func NewJSONParser() *JSONParser {
	return &JSONParser{
		tracer: otelapi.Tracer("json-parser"),
	}
}

// ParseClosestBuses decodes a closest-buses response body. A missing stop
// name is not an error here; it is how upstream reports an unknown stop.
func (p *JSONParser) ParseClosestBuses(ctx context.Context, stopID string, body []byte) (*types.ClosestBuses, error) {
	_, span := p.tracer.Start(ctx, "json_parser.parse_closest_buses",
		trace.WithAttributes(
			attribute.String("stop_id", stopID),
			attribute.Int("json_size_bytes", len(body)),
		),
	)
	defer span.End()

	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		otel.RecordError(span, ErrEmptyResponse, otel.ErrorTypeParse, true)
		return nil, ErrEmptyResponse
	}

	m, err := mxj.NewMapJson([]byte(trimmed))
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeParse, true)
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	result := &types.ClosestBuses{
		StopID:    stopID,
		StopName:  extractStopName(m),
		Buses:     extractBuses(m),
		FetchedAt: time.Now(),
	}

	span.SetAttributes(
		attribute.String("stop_name", result.StopName),
		attribute.Int("buses_count", len(result.Buses)),
	)
	otel.SetSpanOk(span)

	return result, nil
}

func extractStopName(m mxj.Map) string {
	info, ok := m["stopInfo"].(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := info["busStopName"].(string)
	return strings.TrimSpace(name)
}

// extractBuses accepts busList as an array or, from some upstream versions,
// a single object.
func extractBuses(m mxj.Map) []types.BusSnapshot {
	var items []interface{}
	switch list := m["busList"].(type) {
	case []interface{}:
		items = list
	case map[string]interface{}:
		items = []interface{}{list}
	default:
		return nil
	}

	buses := make([]types.BusSnapshot, 0, len(items))
	for _, item := range items {
		entry, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		buses = append(buses, parseBus(entry))
	}
	return buses
}

func parseBus(entry map[string]interface{}) types.BusSnapshot {
	return types.BusSnapshot{
		Plate:       toString(entry["plate"]),
		RouteCode:   toString(entry["displayRouteCode"]),
		StopsAway:   toInt(entry["stopDiff"]),
		MinutesAway: toInt(entry["timeDiff"]),
		Latitude:    toFloat(entry["lat"]),
		Longitude:   toFloat(entry["lng"]),
	}
}

func toString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(f)
		}
	}
	return 0
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return f
		}
	}
	return 0
}
