package otel

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// ServiceName is the name this bot reports to telemetry backends.
const ServiceName = "antalyabus"

// Version is set at build time via -ldflags
// e.g., go build -ldflags="-X antalyabus/pkg/otel.Version=1.2.3"
var Version = "dev"

// serviceInstanceID prefers OTEL_SERVICE_INSTANCE_ID, then the hostname.
func serviceInstanceID() string {
	if id := os.Getenv("OTEL_SERVICE_INSTANCE_ID"); id != "" {
		return id
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return fmt.Sprintf("%s-%d", ServiceName, os.Getpid())
}

// NewResource describes this process for both the tracer and meter providers.
func NewResource() (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithHost(),
		resource.WithProcess(),
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(Version),
			semconv.ServiceNamespace(getEnv("OTEL_SERVICE_NAMESPACE", ServiceName)),
			semconv.ServiceInstanceID(serviceInstanceID()),
			semconv.DeploymentEnvironment(getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "production")),
			semconv.ProcessRuntimeName("go"),
			semconv.ProcessRuntimeVersion(runtime.Version()),
		),
	)
}
