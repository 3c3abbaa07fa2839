package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisStreamStore appends events to a capped Redis stream.
type RedisStreamStore struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

// Append implements EventStore and returns the stream entry id.
func (s RedisStreamStore) Append(ctx context.Context, event Event) (string, error) {
	maxLen := s.MaxLen
	if maxLen <= 0 {
		maxLen = 10000
	}
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Stream,
		MaxLen: maxLen,
		Values: map[string]any{
			"topic":       event.Topic,
			"quote_id":    event.QuoteID,
			"payload":     string(event.Payload),
			"occurred_at": event.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Result()
}

// LogNotifier writes every event to the logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(_ context.Context, event Event) error {
	n.Logger.Info().
		Str("topic", event.Topic).
		Str("quote_id", event.QuoteID).
		Str("event_id", event.ID).
		RawJSON("payload", event.Payload).
		Msg("quote_event")
	return nil
}
