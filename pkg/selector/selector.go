package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"antalyabus/pkg/otel"
	"antalyabus/pkg/types"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Source returns the buses currently approaching a stop.
type Source interface {
	FetchClosestBuses(ctx context.Context, stopID string) (*types.ClosestBuses, error)
}

// Selector filters and orders upstream snapshots for a query.
type Selector struct {
	gate   Gate
	tracer trace.Tracer
}

func New(gate Gate) *Selector {
	return &Selector{
		gate:   gate,
		tracer: otelapi.Tracer("selector"),
	}
}

// Select keeps the buses matching the query's route suffix that have left the
// terminal, ordered by minutes away. Buses with equal ETA keep their upstream
// order. The input slice is not modified.
func (s *Selector) Select(buses []types.BusSnapshot, q types.Query) ([]types.BusSnapshot, error) {
	selected := make([]types.BusSnapshot, 0, len(buses))
	for _, bus := range buses {
		if q.RouteSuffix != "" && !strings.HasSuffix(bus.RouteCode, q.RouteSuffix) {
			continue
		}
		if !s.gate.HasDeparted(bus) {
			continue
		}
		selected = append(selected, bus)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].MinutesAway < selected[j].MinutesAway
	})

	if len(selected) == 0 {
		return nil, &NoBusesError{StopID: q.StopID}
	}
	return selected, nil
}

// Find fetches the buses for the query's stop, validates the stop and selects
// the candidates. All failures are one of the user-facing error types.
func (s *Selector) Find(ctx context.Context, src Source, q types.Query) ([]types.BusSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "selector.find",
		trace.WithAttributes(
			attribute.String("stop_id", q.StopID),
			attribute.String("route_suffix", q.RouteSuffix),
		),
	)
	defer span.End()

	if q.StopID == "" {
		err := &UnknownStopError{StopID: q.StopID}
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return nil, err
	}

	resp, err := src.FetchClosestBuses(ctx, q.StopID)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeUpstream, true)
		return nil, &UpstreamUnavailableError{Err: err}
	}
	if resp == nil {
		err := &UpstreamUnavailableError{Err: fmt.Errorf("empty response for stop %s", q.StopID)}
		otel.RecordError(span, err, otel.ErrorTypeUpstream, true)
		return nil, err
	}
	if resp.StopName == "" {
		err := &UnknownStopError{StopID: q.StopID}
		otel.RecordError(span, err, otel.ErrorTypeValidation, false)
		return nil, err
	}

	buses, err := s.Select(resp.Buses, q)
	if err != nil {
		otel.RecordError(span, err, otel.ErrorTypeValidation, true)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("stop_name", resp.StopName),
		attribute.Int("buses_received", len(resp.Buses)),
		attribute.Int("buses_selected", len(buses)),
	)
	otel.SetSpanOk(span)
	return buses, nil
}
