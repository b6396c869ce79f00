package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"antalyabus/pkg/bot"
	"antalyabus/pkg/config"
	"antalyabus/pkg/events"
	"antalyabus/pkg/kart"
	"antalyabus/pkg/logging"
	"antalyabus/pkg/metrics"
	"antalyabus/pkg/otel"
	"antalyabus/pkg/profiling"
	"antalyabus/pkg/selector"
	"antalyabus/pkg/tracing"
	"antalyabus/pkg/tracker"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// .env values become defaults for the flags below
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var cfg config.Config

	flag.StringVar(&cfg.BotToken, "bot-token", getEnv("BOT_TOKEN", ""), "Telegram bot token (required unless --dry-run)")
	flag.BoolVar(&cfg.BotDebug, "bot-debug", getEnvBool("BOT_DEBUG", false), "Log Telegram API traffic")
	flag.BoolVar(&cfg.DryRun, "dry-run", getEnvBool("BOT_DRY_RUN", false), "Read queries from stdin and print replies instead of using Telegram")
	flag.StringVar(&cfg.KartBaseURL, "kart-url", getEnv("KART_BASE_URL", ""), "Bus API base URL (required)")
	flag.StringVar(&cfg.KartRegion, "kart-region", getEnv("KART_REGION", kart.DefaultRegion), "Bus API region code")
	flag.DurationVar(&cfg.HTTPTimeout, "http-timeout", getEnvDuration("HTTP_TIMEOUT", 10*time.Second), "Timeout of one bus API request")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", getEnvDuration("CACHE_TTL", 20*time.Second), "How long bus API responses are reused (0 disables)")
	flag.IntVar(&cfg.MaxPolls, "max-polls", getEnvInt("MAX_POLLS", tracker.DefaultMaxPolls), "Checks per tracking session before giving up (0 = unlimited)")
	flag.Float64Var(&cfg.TerminalLat, "terminal-lat", getEnvFloat("TERMINAL_LAT", selector.Terminal.Latitude), "Latitude of the terminal buses depart from")
	flag.Float64Var(&cfg.TerminalLng, "terminal-lng", getEnvFloat("TERMINAL_LNG", selector.Terminal.Longitude), "Longitude of the terminal buses depart from")
	flag.Float64Var(&cfg.TerminalTolerance, "terminal-tolerance", getEnvFloat("TERMINAL_TOLERANCE", selector.Terminal.Tolerance), "Distance in degrees within which a bus counts as at the terminal")
	flag.StringVar(&cfg.LokiURL, "loki-url", getEnv("LOKI_URL", ""), "Grafana Loki URL for tracking events (optional)")
	flag.StringVar(&cfg.LokiUser, "loki-user", getEnv("LOKI_USER", ""), "Loki username (for Grafana Cloud authentication)")
	flag.StringVar(&cfg.LokiPassword, "loki-password", getEnv("LOKI_PASSWORD", ""), "Loki password/token (for Grafana Cloud authentication)")
	flag.StringVar(&cfg.NATSURL, "nats-url", getEnv("NATS_URL", ""), "NATS URL for tracking events (optional)")
	flag.StringVar(&cfg.NATSSubject, "nats-subject", getEnv("NATS_SUBJECT", "antalyabus.tracking"), "NATS subject prefix for tracking events")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("METRICS_ADDR", ""), "Address for the Prometheus /metrics endpoint, e.g. :9090 (optional)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Antalya Bus Telegram Bot\n\n")
		fmt.Fprintf(os.Stderr, "Answers bus stop queries with the buses approaching the stop and\n")
		fmt.Fprintf(os.Stderr, "tracks a chosen bus until it is about to arrive.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables (also read from .env):\n")
		fmt.Fprintf(os.Stderr, "  BOT_TOKEN          - Telegram bot token (required)\n")
		fmt.Fprintf(os.Stderr, "  BOT_DEBUG          - Log Telegram API traffic (default: false)\n")
		fmt.Fprintf(os.Stderr, "  BOT_DRY_RUN        - Use stdin/stdout instead of Telegram (default: false)\n")
		fmt.Fprintf(os.Stderr, "  KART_BASE_URL      - Bus API base URL (required)\n")
		fmt.Fprintf(os.Stderr, "  KART_REGION        - Bus API region code (default: 026)\n")
		fmt.Fprintf(os.Stderr, "  HTTP_TIMEOUT       - Bus API request timeout (default: 10s)\n")
		fmt.Fprintf(os.Stderr, "  CACHE_TTL          - Bus API response cache TTL (default: 20s)\n")
		fmt.Fprintf(os.Stderr, "  MAX_POLLS          - Checks per tracking session (default: 60)\n")
		fmt.Fprintf(os.Stderr, "  TERMINAL_LAT       - Terminal latitude (default: 36.8308009)\n")
		fmt.Fprintf(os.Stderr, "  TERMINAL_LNG       - Terminal longitude (default: 30.5962667)\n")
		fmt.Fprintf(os.Stderr, "  TERMINAL_TOLERANCE - Terminal tolerance in degrees (default: 0.002)\n")
		fmt.Fprintf(os.Stderr, "  LOKI_URL           - Loki URL for tracking events\n")
		fmt.Fprintf(os.Stderr, "  LOKI_USER          - Loki username (for Grafana Cloud)\n")
		fmt.Fprintf(os.Stderr, "  LOKI_PASSWORD      - Loki password/token (for Grafana Cloud)\n")
		fmt.Fprintf(os.Stderr, "  NATS_URL           - NATS URL for tracking events\n")
		fmt.Fprintf(os.Stderr, "  NATS_SUBJECT       - NATS subject prefix (default: antalyabus.tracking)\n")
		fmt.Fprintf(os.Stderr, "  METRICS_ADDR       - Prometheus listen address\n")
		fmt.Fprintf(os.Stderr, "  LOG_LEVEL          - debug, info, warn or error (default: info)\n")
		fmt.Fprintf(os.Stderr, "  LOG_FORMAT         - text or json (default: text)\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Try queries in the terminal\n")
		fmt.Fprintf(os.Stderr, "  %s --dry-run --kart-url=https://api.example.com\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Run the bot with Loki event logging\n")
		fmt.Fprintf(os.Stderr, "  %s --bot-token=TOKEN --kart-url=https://api.example.com \\\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    --loki-url=http://localhost:3100\n\n")
	}

	flag.Parse()

	logger := logging.InitLogging()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	shutdownTracing, err := tracing.InitTracing()
	if err != nil {
		logger.Error("Failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer shutdownTracing()

	shutdownMetrics, err := metrics.InitMetrics()
	if err != nil {
		logger.Error("Failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	defer shutdownMetrics()

	shutdownProfiling, err := profiling.InitProfiling(otel.Version)
	if err != nil {
		logger.Error("Failed to initialize profiling", "error", err)
		os.Exit(1)
	}
	defer shutdownProfiling()

	if err := run(cfg, logger); err != nil {
		logger.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Antalya bus bot shutdown complete")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		collector := metrics.NewCollector()
		metrics.UsePrometheus(collector)
		srv := collector.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error stopping metrics server", "error", err)
			}
		}()
	}

	var sinks []events.Sink
	if cfg.LokiURL != "" {
		sinks = append(sinks, events.NewLokiSink(cfg.LokiURL, cfg.LokiUser, cfg.LokiPassword))
		logger.Info("Tracking events will be sent to Loki", "url", cfg.LokiURL)
	}
	if cfg.NATSURL != "" {
		natsSink, err := events.NewNATSSink(cfg.NATSURL, cfg.NATSSubject, logger)
		if err != nil {
			logger.Warn("NATS unavailable, tracking events will not be published there", "error", err)
		} else {
			defer natsSink.Close()
			sinks = append(sinks, natsSink)
			logger.Info("Tracking events will be published to NATS", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
		}
	}
	sink := events.NewMulti(sinks...)

	client := kart.NewClient(cfg.KartBaseURL, cfg.KartRegion, cfg.HTTPTimeout, cfg.CacheTTL, logger)
	sel := selector.New(selector.Gate{
		Latitude:  cfg.TerminalLat,
		Longitude: cfg.TerminalLng,
		Tolerance: cfg.TerminalTolerance,
	})

	var (
		sender   tracker.Sender
		console  *bot.Console
		telegram *bot.Telegram
		err      error
	)
	if cfg.DryRun {
		console = bot.NewConsole(os.Stdout)
		sender = console
		logger.Info("Starting Antalya bus bot in DRY RUN mode, reading queries from stdin")
	} else {
		telegram, err = bot.NewTelegram(cfg.BotToken, cfg.BotDebug, logger)
		if err != nil {
			return err
		}
		if err := telegram.RegisterCommands(); err != nil {
			logger.Warn("Failed to register bot commands", "error", err)
		}
		sender = telegram
	}

	loop := tracker.NewLoop(sel, client, sender, sink, tracker.Config{
		MaxPolls: cfg.MaxPolls,
		Logger:   logger,
	})
	manager := tracker.NewManager(loop, logger)
	handler := bot.NewHandler(sel, client, sender, manager, logger)

	logger.Info("Antalya bus bot started",
		"kart_url", cfg.KartBaseURL,
		"region", cfg.KartRegion,
		"max_polls", cfg.MaxPolls,
		"cache_ttl", cfg.CacheTTL,
	)

	if cfg.DryRun {
		err = console.Run(ctx, os.Stdin, handler)
		if err == nil {
			// stdin is exhausted; let running sessions finish until interrupted
			<-ctx.Done()
		}
	} else {
		err = telegram.Run(ctx, handler)
	}

	logger.Info("Stopping tracking sessions", "active", manager.Active())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := manager.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("Tracking sessions did not stop in time", "error", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// getEnv returns the value of an environment variable or a default value if not set
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			exitInvalidEnv(key, value, err)
		}
		return b
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err != nil {
			exitInvalidEnv(key, value, err)
		}
		return i
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			exitInvalidEnv(key, value, err)
		}
		return f
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			exitInvalidEnv(key, value, err)
		}
		return d
	}
	return defaultValue
}

func exitInvalidEnv(key, value string, err error) {
	fmt.Fprintf(os.Stderr, "Error: invalid %s=%q: %v\n", key, value, err)
	os.Exit(1)
}
