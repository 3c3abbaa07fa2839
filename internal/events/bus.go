package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is one emitted quote event.
type Event struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	QuoteID    string          `json:"quoteId"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// EventStore persists emitted events.
type EventStore interface {
	Append(ctx context.Context, event Event) (string, error)
}

// Notifier reacts to emitted events (e.g. logs, metrics, etc.).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

// Bus persists quote events when a store is configured and fans them out to
// notifiers.
type Bus struct {
	Store     EventStore
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event and dispatches it to all configured handlers. Store
// and notifier failures are joined; the event is returned either way.
func (b *Bus) Emit(ctx context.Context, topic, quoteID string, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(quoteID) == "" {
		return Event{}, errors.New("events: quote id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		QuoteID:    quoteID,
		Payload:    encoded,
		OccurredAt: now().UTC(),
	}
	var joined error
	if b.Store != nil {
		id, storeErr := b.Store.Append(ctx, ev)
		if storeErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: persist event: %w", storeErr))
		} else if id != "" {
			ev.ID = id
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
		}
	}
	return ev, joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		return rawJSON(v)
	case json.RawMessage:
		return rawJSON(v)
	default:
		return json.Marshal(v)
	}
}

func rawJSON(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return []byte("{}"), nil
	}
	if !json.Valid(v) {
		return nil, errors.New("payload is not valid json")
	}
	return append([]byte(nil), v...), nil
}
