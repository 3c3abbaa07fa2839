package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flyer-quote/internal/events"
)

type flakyNotifier struct {
	mu       sync.Mutex
	failures int
	seen     []string
}

func (f *flakyNotifier) Notify(_ context.Context, ev events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("endpoint down")
	}
	f.seen = append(f.seen, ev.Topic)
	return nil
}

func TestConsumerRedeliversFailedEntries(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	bus := events.Bus{Store: events.RedisStreamStore{Client: client, Stream: "flyer:events"}}
	_, err = bus.Emit(ctx, events.TopicQuoteCreated, "q1", map[string]any{"version": 1})
	require.NoError(t, err)
	_, err = bus.Emit(ctx, events.TopicQuoteRecomputed, "q1", map[string]any{"version": 2})
	require.NoError(t, err)

	notifier := &flakyNotifier{failures: 1}
	consumer := events.Consumer{
		Client:    client,
		Stream:    "flyer:events",
		Group:     "relay",
		Name:      "test",
		Notifiers: []events.Notifier{notifier},
		Logger:    zerolog.Nop(),
	}

	acked, err := consumer.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, acked)
	require.Equal(t, []string{events.TopicQuoteRecomputed}, notifier.seen)

	acked, err = consumer.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, acked)
	require.Equal(t, []string{events.TopicQuoteRecomputed, events.TopicQuoteCreated}, notifier.seen)

	acked, err = consumer.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, acked)
}

func TestConsumerRequiresStreamAndGroup(t *testing.T) {
	_, err := events.Consumer{}.ProcessOnce(context.Background())
	require.Error(t, err)
}

func TestWebhookNotifierSignsPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received []http.Header
		bodies   [][]byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = append(received, r.Header.Clone())
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	hook, err := events.NewWebhookNotifier(srv.URL, "s3cret", time.Second)
	require.NoError(t, err)
	hook.Topics = []string{events.TopicQuoteValidityChanged}
	hook.Now = func() time.Time { return time.Unix(1777881600, 0) }

	ev := events.Event{
		ID:         "1-0",
		Topic:      events.TopicQuoteValidityChanged,
		QuoteID:    "q1",
		Payload:    json.RawMessage(`{"valid":true}`),
		OccurredAt: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, hook.Notify(context.Background(), ev))
	require.NoError(t, hook.Notify(context.Background(), events.Event{ID: "2-0", Topic: events.TopicQuoteCreated}))

	require.Len(t, received, 1)
	h := received[0]
	require.Equal(t, "1-0", h.Get("X-Event-ID"))
	require.Equal(t, strconv.FormatInt(1777881600, 10), h.Get("X-Timestamp"))
	require.Equal(t, events.ComputeSignature("s3cret", 1777881600, "1-0", bodies[0]), h.Get("X-Signature"))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(bodies[0], &payload))
	require.Equal(t, "q1", payload["quoteId"])
	require.Equal(t, map[string]any{"valid": true}, payload["data"])
}

func TestWebhookNotifierFailsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	hook, err := events.NewWebhookNotifier(srv.URL, "s3cret", time.Second)
	require.NoError(t, err)
	err = hook.Notify(context.Background(), events.Event{ID: "1-0", Topic: events.TopicQuoteCreated, Payload: json.RawMessage(`{}`)})
	require.ErrorContains(t, err, "502")

	_, err = events.NewWebhookNotifier("http://example.com/hook", "", 0)
	require.Error(t, err)
	_, err = events.NewWebhookNotifier("ftp://localhost/hook", "", 0)
	require.Error(t, err)
}
