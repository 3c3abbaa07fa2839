package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/noah-isme/flyer-quote/internal/schedule"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	PriceTableSource string
	AreasSource      string

	QuoteTimezone         string
	QuoteStandardLeadDays int
	QuoteSessionTTL       time.Duration

	IdempotencyTTL  time.Duration
	RateLimitWindow time.Duration
	RateLimitMax    int
	RateLimitWrites int
	BodyLimitBytes  int64
	SecurityHeaders bool

	ReferenceFetchTimeout  time.Duration
	ReferenceFetchAttempts int
	ReferenceCacheTTL      time.Duration

	// PriceTableWait bounds how long startup waits for the first price table.
	PriceTableWait time.Duration

	EventsConsumerGroup string
	WebhookURL          string
	WebhookSecret       string
	WebhookTimeout      time.Duration
	WebhookTopics       []string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	return build(k)
}

// LoadForTests reads only the given keys; the process environment is ignored.
func LoadForTests(values map[string]string) (*Config, error) {
	k := koanf.New(".")
	for key, value := range values {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}
	return build(k)
}

func build(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PriceTableSource: strings.TrimSpace(k.String("PRICE_TABLE_SOURCE")),
		AreasSource:      strings.TrimSpace(k.String("AREAS_SOURCE")),

		QuoteTimezone:         valueOrDefault(k.String("QUOTE_TIMEZONE"), schedule.DefaultTimezone),
		QuoteStandardLeadDays: parseInt(k.String("QUOTE_STANDARD_LEAD_DAYS"), schedule.DefaultStandardLeadDays),
		QuoteSessionTTL:       parseDuration(k.String("QUOTE_SESSION_TTL"), "72h"),

		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RateLimitWindow: parseDuration(k.String("RATE_LIMIT_WINDOW"), "1m"),
		RateLimitMax:    parseInt(k.String("RATE_LIMIT_MAX"), 120),
		RateLimitWrites: parseInt(k.String("RATE_LIMIT_WRITES"), 60),
		BodyLimitBytes:  int64(parseInt(k.String("BODY_LIMIT_BYTES"), 1<<20)),
		SecurityHeaders: parseBoolDefault(k.String("SECURITY_HEADERS"), true),

		ReferenceFetchTimeout:  parseDuration(k.String("REFERENCE_FETCH_TIMEOUT"), "5s"),
		ReferenceFetchAttempts: parseInt(k.String("REFERENCE_FETCH_ATTEMPTS"), 3),
		ReferenceCacheTTL:      parseDuration(k.String("REFERENCE_CACHE_TTL"), "168h"),
		PriceTableWait:         parseDuration(k.String("PRICE_TABLE_WAIT"), "10s"),

		EventsConsumerGroup: valueOrDefault(k.String("EVENTS_CONSUMER_GROUP"), "relay"),
		WebhookURL:          strings.TrimSpace(k.String("WEBHOOK_URL")),
		WebhookSecret:       k.String("WEBHOOK_SECRET"),
		WebhookTimeout:      parseDuration(k.String("WEBHOOK_TIMEOUT"), "5s"),
		WebhookTopics:       splitAndTrim(k.String("WEBHOOK_TOPICS")),
	}

	if cfg.PriceTableSource == "" {
		return nil, errors.New("PRICE_TABLE_SOURCE is required")
	}
	if cfg.AreasSource == "" {
		return nil, errors.New("AREAS_SOURCE is required")
	}
	if cfg.QuoteStandardLeadDays <= 0 {
		return nil, errors.New("QUOTE_STANDARD_LEAD_DAYS must be positive")
	}
	if cfg.WebhookURL != "" && strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, errors.New("WEBHOOK_SECRET is required when WEBHOOK_URL is set")
	}
	if _, err := time.LoadLocation(cfg.QuoteTimezone); err != nil {
		return nil, fmt.Errorf("QUOTE_TIMEZONE: %w", err)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Calendar builds the start date calendar from the quote settings.
func (c *Config) Calendar() (schedule.Calendar, error) {
	return schedule.NewCalendar(c.QuoteTimezone, c.QuoteStandardLeadDays)
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// MustLoad is Load for entrypoints: it panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
