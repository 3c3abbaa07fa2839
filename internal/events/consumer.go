package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Consumer reads quote events from a Redis stream through a consumer group
// and hands them to notifiers. An entry is acknowledged once every notifier
// accepted it; failed entries stay pending and are retried.
type Consumer struct {
	Client    *redis.Client
	Stream    string
	Group     string
	Name      string
	Notifiers []Notifier
	Batch     int64
	Block     time.Duration
	// RetryEvery controls how often pending entries are re-read.
	RetryEvery time.Duration
	Logger     zerolog.Logger
}

// Run consumes until ctx is cancelled.
func (c Consumer) Run(ctx context.Context) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	block := c.Block
	if block <= 0 {
		block = 2 * time.Second
	}
	retry := c.RetryEvery
	if retry <= 0 {
		retry = 30 * time.Second
	}

	if _, err := c.poll(ctx, "0", -1); err != nil && !isDone(err) {
		return err
	}
	lastRetry := time.Now()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastRetry) >= retry {
			if _, err := c.poll(ctx, "0", -1); err != nil {
				if isDone(err) {
					return nil
				}
				return err
			}
			lastRetry = time.Now()
		}
		if _, err := c.poll(ctx, ">", block); err != nil {
			if isDone(err) {
				return nil
			}
			return err
		}
	}
}

// ProcessOnce handles pending entries and then any new ones without blocking.
// It returns the number of acknowledged entries.
func (c Consumer) ProcessOnce(ctx context.Context) (int, error) {
	if err := c.ensureGroup(ctx); err != nil {
		return 0, err
	}
	pending, err := c.poll(ctx, "0", -1)
	if err != nil {
		return pending, err
	}
	fresh, err := c.poll(ctx, ">", -1)
	return pending + fresh, err
}

func (c Consumer) ensureGroup(ctx context.Context) error {
	if c.Client == nil {
		return errors.New("events: consumer redis client not configured")
	}
	if strings.TrimSpace(c.Stream) == "" || strings.TrimSpace(c.Group) == "" {
		return errors.New("events: consumer stream and group are required")
	}
	err := c.Client.XGroupCreateMkStream(ctx, c.Stream, c.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("events: create group: %w", err)
	}
	return nil
}

func (c Consumer) poll(ctx context.Context, from string, block time.Duration) (int, error) {
	batch := c.Batch
	if batch <= 0 {
		batch = 50
	}
	name := c.Name
	if name == "" {
		name = "relay"
	}
	streams, err := c.Client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.Group,
		Consumer: name,
		Streams:  []string{c.Stream, from},
		Count:    batch,
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			ev, err := decodeMessage(msg)
			if err != nil {
				// Undecodable entries would be redelivered forever.
				c.Logger.Error().Err(err).Str("entry_id", msg.ID).Msg("drop malformed quote event")
				if ackErr := c.Client.XAck(ctx, c.Stream, c.Group, msg.ID).Err(); ackErr != nil {
					return acked, ackErr
				}
				continue
			}
			if err := c.deliver(ctx, ev); err != nil {
				c.Logger.Warn().Err(err).Str("entry_id", msg.ID).Str("topic", ev.Topic).Msg("quote event delivery failed")
				continue
			}
			if err := c.Client.XAck(ctx, c.Stream, c.Group, msg.ID).Err(); err != nil {
				return acked, err
			}
			acked++
		}
	}
	return acked, nil
}

func (c Consumer) deliver(ctx context.Context, ev Event) error {
	var joined error
	for _, n := range c.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

func decodeMessage(msg redis.XMessage) (Event, error) {
	str := func(key string) string {
		v, _ := msg.Values[key].(string)
		return v
	}
	ev := Event{
		ID:      msg.ID,
		Topic:   str("topic"),
		QuoteID: str("quote_id"),
	}
	if ev.Topic == "" {
		return Event{}, errors.New("events: entry without topic")
	}
	payload := str("payload")
	if payload == "" {
		payload = "{}"
	}
	if !json.Valid([]byte(payload)) {
		return Event{}, errors.New("events: entry payload is not valid json")
	}
	ev.Payload = json.RawMessage(payload)
	if raw := str("occurred_at"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Event{}, fmt.Errorf("events: occurred_at: %w", err)
		}
		ev.OccurredAt = t
	}
	return ev, nil
}

func isDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
