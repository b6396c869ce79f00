package profiling

import (
	"log/slog"
	"os"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// InitProfiling starts continuous profiling when PYROSCOPE_PROFILING_ENABLED
// is set. Failing to reach the server is not fatal.
func InitProfiling(version string) (func(), error) {
	cfg, ok := configFromEnv(version)
	if !ok {
		slog.Debug("Pyroscope profiling is disabled")
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(cfg)
	if err != nil {
		slog.Warn("Failed to start Pyroscope profiler", "error", err)
		return func() {}, nil
	}
	slog.Debug("Pyroscope profiling started", "server", cfg.ServerAddress, "application", cfg.ApplicationName)

	return func() {
		if err := profiler.Stop(); err != nil {
			slog.Error("Error stopping Pyroscope profiler", "error", err)
		}
	}, nil
}

// configFromEnv builds the profiler config. Basic auth is only set when both
// user and password are present.
func configFromEnv(version string) (pyroscope.Config, bool) {
	if !isTrue(os.Getenv("PYROSCOPE_PROFILING_ENABLED")) {
		return pyroscope.Config{}, false
	}

	cfg := pyroscope.Config{
		ApplicationName: getEnv("PYROSCOPE_APPLICATION_NAME", "antalyabus"),
		ServerAddress:   getEnv("PYROSCOPE_SERVER_ADDRESS", "http://localhost:4040"),
		Tags: map[string]string{
			"service": "antalyabus",
			"version": version,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	}

	user, password := os.Getenv("PYROSCOPE_BASIC_AUTH_USER"), os.Getenv("PYROSCOPE_BASIC_AUTH_PASSWORD")
	if user != "" && password != "" {
		cfg.BasicAuthUser = user
		cfg.BasicAuthPassword = password
	}
	return cfg, true
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
