package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flyer-quote/internal/config"
)

func baseEnv() map[string]string {
	return map[string]string{
		"PRICE_TABLE_SOURCE":       "testdata/prices.yaml",
		"AREAS_SOURCE":             "https://reference.example.ch/areas.yaml",
		"QUOTE_TIMEZONE":           "",
		"QUOTE_STANDARD_LEAD_DAYS": "",
		"QUOTE_SESSION_TTL":        "",
		"RATE_LIMIT_MAX":           "",
		"SECURITY_HEADERS":         "",
		"REDIS_URL":                "",
		"PORT":                     "",
		"WEBHOOK_URL":              "",
		"WEBHOOK_SECRET":           "",
		"WEBHOOK_TOPICS":           "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "Europe/Zurich", cfg.QuoteTimezone)
	require.Equal(t, 10, cfg.QuoteStandardLeadDays)
	require.Equal(t, 72*time.Hour, cfg.QuoteSessionTTL)
	require.Equal(t, 120, cfg.RateLimitMax)
	require.Equal(t, 10*time.Second, cfg.PriceTableWait)
	require.True(t, cfg.SecurityHeaders)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, ":8080", cfg.HTTPAddr())

	cal, err := cfg.Calendar()
	require.NoError(t, err)
	require.Equal(t, 10, cal.StandardLeadDays)
}

func TestLoadOverrides(t *testing.T) {
	env := baseEnv()
	env["QUOTE_STANDARD_LEAD_DAYS"] = "7"
	env["QUOTE_SESSION_TTL"] = "24h"
	env["SECURITY_HEADERS"] = "off"
	env["PORT"] = ":9090"
	env["PRICE_TABLE_WAIT"] = "250ms"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.PriceTableWait)
	require.Equal(t, 7, cfg.QuoteStandardLeadDays)
	require.Equal(t, 24*time.Hour, cfg.QuoteSessionTTL)
	require.False(t, cfg.SecurityHeaders)
	require.Equal(t, ":9090", cfg.HTTPAddr())
}

func TestLoadRequiresSources(t *testing.T) {
	env := baseEnv()
	env["PRICE_TABLE_SOURCE"] = ""
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "PRICE_TABLE_SOURCE")

	env = baseEnv()
	env["QUOTE_TIMEZONE"] = "Mars/Olympus"
	_, err = config.LoadForTests(env)
	require.ErrorContains(t, err, "QUOTE_TIMEZONE")
}

func TestLoadWebhookSettings(t *testing.T) {
	env := baseEnv()
	env["WEBHOOK_URL"] = "https://hooks.example.ch/quotes"
	_, err := config.LoadForTests(env)
	require.ErrorContains(t, err, "WEBHOOK_SECRET")

	env["WEBHOOK_SECRET"] = "s3cret"
	env["WEBHOOK_TOPICS"] = "quote.validity_changed, quote.deleted"
	cfg, err := config.LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, []string{"quote.validity_changed", "quote.deleted"}, cfg.WebhookTopics)
	require.Equal(t, 5*time.Second, cfg.WebhookTimeout)
	require.Equal(t, "relay", cfg.EventsConsumerGroup)
}
