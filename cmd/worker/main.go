package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/flyer-quote/internal/cache"
	"github.com/noah-isme/flyer-quote/internal/config"
	"github.com/noah-isme/flyer-quote/internal/events"
	"github.com/noah-isme/flyer-quote/internal/obs"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the event relay")
	}
	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	notifiers := []events.Notifier{events.LogNotifier{Logger: logger}}
	if cfg.WebhookURL != "" {
		hook, err := events.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, cfg.WebhookTimeout)
		if err != nil {
			logger.Fatal().Err(err).Msg("configure webhook")
		}
		for _, topic := range cfg.WebhookTopics {
			if !slices.Contains(events.DefaultTopics(), topic) {
				logger.Warn().Str("topic", topic).Msg("webhook topic is never emitted")
			}
		}
		hook.Topics = cfg.WebhookTopics
		notifiers = append(notifiers, hook)
	}

	consumer := events.Consumer{
		Client:     redisClient,
		Stream:     cache.StreamEvents,
		Group:      cfg.EventsConsumerGroup,
		Name:       consumerName(),
		Notifiers:  notifiers,
		Block:      2 * time.Second,
		RetryEvery: 30 * time.Second,
		Logger:     logger,
	}

	logger.Info().Str("group", consumer.Group).Str("consumer", consumer.Name).Msg("worker starting")
	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func consumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
