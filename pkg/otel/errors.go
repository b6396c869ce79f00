package otel

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error type constants for structured error recording
const (
	ErrorTypeNetwork    = "network"
	ErrorTypeHTTP       = "http"
	ErrorTypeParse      = "parse"
	ErrorTypeValidation = "validation"
	ErrorTypeUpstream   = "upstream"
	ErrorTypeDelivery   = "delivery"
)

// RecordError records err on the span with its type and whether a retry or
// later poll may succeed, and marks the span as failed.
func RecordError(span trace.Span, err error, errorType string, transient bool) {
	span.RecordError(err, trace.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.Bool("error.transient", transient),
	))
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOk marks the span as successful.
func SetSpanOk(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
