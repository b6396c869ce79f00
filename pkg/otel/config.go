package otel

import (
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Protocol represents OTLP transport protocol
type Protocol string

const (
	ProtocolGRPC         Protocol = "grpc"
	ProtocolHTTPProtobuf Protocol = "http/protobuf"
	ProtocolHTTPJSON     Protocol = "http/json"
)

// SignalType represents the OTEL signal type
type SignalType string

const (
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// ExporterConfig holds parsed OTLP exporter configuration for a signal
type ExporterConfig struct {
	Endpoint    string
	Protocol    Protocol
	Headers     map[string]string
	Timeout     time.Duration
	Insecure    bool
	Compression string
}

// IsTracingEnabled returns true if OTEL_TRACING_ENABLED is set
func IsTracingEnabled() bool {
	return isTrue(getEnv("OTEL_TRACING_ENABLED", "false"))
}

// IsMetricsEnabled returns true if OTEL_METRICS_ENABLED is set
func IsMetricsEnabled() bool {
	return isTrue(getEnv("OTEL_METRICS_ENABLED", "false"))
}

// GetExporterConfig resolves the exporter settings for one signal. The
// OTEL_EXPORTER_OTLP_<SIGNAL>_* variables win over OTEL_EXPORTER_OTLP_*.
func GetExporterConfig(signal SignalType) ExporterConfig {
	lookup := signalLookup(signal)

	protocol := parseProtocol(lookup("PROTOCOL", "http/protobuf"))
	endpoint := resolveEndpoint(signal, protocol)

	cfg := ExporterConfig{
		Endpoint:    endpoint,
		Protocol:    protocol,
		Headers:     parseHeaders(lookup("HEADERS", "")),
		Timeout:     parseDuration(lookup("TIMEOUT", "10s"), 10*time.Second),
		Compression: lookup("COMPRESSION", ""),
	}

	if v := lookup("INSECURE", ""); v != "" {
		cfg.Insecure = isTrue(v)
	} else {
		cfg.Insecure = strings.HasPrefix(endpoint, "http://")
	}

	return cfg
}

// signalLookup returns a getter for OTEL_EXPORTER_OTLP_[<SIGNAL>_]<KEY>.
func signalLookup(signal SignalType) func(key, def string) string {
	specific := "OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(signal)) + "_"
	return func(key, def string) string {
		if v := os.Getenv(specific + key); v != "" {
			return v
		}
		return getEnv("OTEL_EXPORTER_OTLP_"+key, def)
	}
}

func parseProtocol(s string) Protocol {
	switch strings.ToLower(s) {
	case "grpc":
		return ProtocolGRPC
	case "http/json":
		return ProtocolHTTPJSON
	default:
		return ProtocolHTTPProtobuf
	}
}

// resolveEndpoint prefers the signal endpoint as-is, then the base endpoint
// with /v1/<signal> appended, then the collector default on localhost.
func resolveEndpoint(signal SignalType, protocol Protocol) string {
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_" + strings.ToUpper(string(signal)) + "_ENDPOINT"); ep != "" {
		return normalizeEndpoint(ep, protocol)
	}
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		return appendSignalPath(normalizeEndpoint(ep, protocol), signal, protocol)
	}
	if protocol == ProtocolGRPC {
		return "localhost:4317"
	}
	return "http://localhost:4318/v1/" + string(signal)
}

// normalizeEndpoint returns host:port for gRPC and a URL with scheme for HTTP.
func normalizeEndpoint(endpoint string, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		endpoint = strings.TrimPrefix(endpoint, "https://")
		if idx := strings.Index(endpoint, "/"); idx != -1 {
			endpoint = endpoint[:idx]
		}
		return endpoint
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	return endpoint
}

func appendSignalPath(endpoint string, signal SignalType, protocol Protocol) string {
	if protocol == ProtocolGRPC {
		return endpoint
	}
	signalPath := "/v1/" + string(signal)

	u, err := url.Parse(endpoint)
	if err != nil {
		return strings.TrimSuffix(endpoint, "/") + signalPath
	}
	if strings.HasSuffix(u.Path, signalPath) {
		return endpoint
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + signalPath
	return u.String()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func isTrue(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseHeaders parses "key1=value1,key2=value2". Values keep everything after
// the first '=' so base64 credentials survive.
func parseHeaders(headerStr string) map[string]string {
	headers := make(map[string]string)
	for _, pair := range strings.Split(headerStr, ",") {
		pair = strings.TrimSpace(pair)
		if idx := strings.Index(pair, "="); idx > 0 {
			key := strings.TrimSpace(pair[:idx])
			headers[key] = pair[idx+1:]
			slog.Debug("Parsed OTEL header", "key", key, "value_length", len(pair)-idx-1)
		}
	}
	return headers
}

// parseDuration accepts Go durations ("10s") and plain milliseconds ("10000").
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}
