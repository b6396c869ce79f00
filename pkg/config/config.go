package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the runtime settings of the bot. The env tags name the
// environment variable each field is read from.
type Config struct {
	BotToken string `env:"BOT_TOKEN" validate:"required_unless=DryRun true"`
	BotDebug bool   `env:"BOT_DEBUG"`

	// DryRun answers queries from stdin instead of Telegram.
	DryRun bool `env:"BOT_DRY_RUN"`

	KartBaseURL string        `env:"KART_BASE_URL" validate:"required,url"`
	KartRegion  string        `env:"KART_REGION" validate:"required,numeric"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" validate:"gt=0"`
	CacheTTL    time.Duration `env:"CACHE_TTL" validate:"gte=0"`

	MaxPolls          int     `env:"MAX_POLLS" validate:"gte=0"`
	TerminalLat       float64 `env:"TERMINAL_LAT" validate:"latitude"`
	TerminalLng       float64 `env:"TERMINAL_LNG" validate:"longitude"`
	TerminalTolerance float64 `env:"TERMINAL_TOLERANCE" validate:"gt=0"`

	LokiURL      string `env:"LOKI_URL" validate:"omitempty,url"`
	LokiUser     string `env:"LOKI_USER"`
	LokiPassword string `env:"LOKI_PASSWORD" validate:"required_with=LokiUser"`

	NATSURL     string `env:"NATS_URL" validate:"omitempty,url"`
	NATSSubject string `env:"NATS_SUBJECT" validate:"required_with=NATSURL"`

	MetricsAddr string `env:"METRICS_ADDR"`
}

// LoadDotEnv loads variables from the given .env files (".env" by default)
// without overriding ones already set. Missing files are not an error.
func LoadDotEnv(filenames ...string) error {
	err := godotenv.Load(filenames...)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Validate checks every field and reports failures by environment variable name.
func (c *Config) Validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_unless":
		return fe.Field() + " is required unless running in dry-run mode"
	case "required_with":
		return fmt.Sprintf("%s is required when %s is set", fe.Field(), fe.Param())
	case "url":
		return fe.Field() + " must be a valid URL"
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Sprintf("%s must be a valid %s (got %v)", fe.Field(), fe.Tag(), fe.Value())
	}
}
