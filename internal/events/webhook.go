package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// WebhookNotifier posts events as signed JSON to a single endpoint.
type WebhookNotifier struct {
	URL    string
	Secret string
	// Topics restricts delivery; empty means every topic.
	Topics []string
	Client *http.Client
	Now    func() time.Time
}

// NewWebhookNotifier validates the endpoint and applies a request timeout.
func NewWebhookNotifier(rawURL, secret string, timeout time.Duration) (*WebhookNotifier, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		URL:    rawURL,
		Secret: secret,
		Client: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}, nil
}

// Notify implements Notifier. Non-2xx answers are errors.
func (w *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	if !w.wants(ev.Topic) {
		return nil
	}
	ctx, span := otel.Tracer("events.WebhookNotifier").Start(ctx, "WebhookNotifier.Notify")
	defer span.End()
	span.SetAttributes(
		attribute.String("webhook.topic", ev.Topic),
		attribute.String("webhook.event_id", ev.ID),
	)

	body, err := json.Marshal(struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		QuoteID    string          `json:"quoteId"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{ev.ID, ev.Topic, ev.QuoteID, ev.Payload, ev.OccurredAt})
	if err != nil {
		span.RecordError(err)
		return err
	}

	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flyer-quote-webhooks/1.0")
	req.Header.Set("X-Event-ID", ev.ID)
	req.Header.Set("X-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Signature", ComputeSignature(w.Secret, ts, ev.ID, body))

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookNotifier) wants(topic string) bool {
	if len(w.Topics) == 0 {
		return true
	}
	for _, t := range w.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// ComputeSignature is HMAC-SHA256 over "<ts>.<eventID>.<body>" keyed with
// the endpoint secret, hex encoded.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return errors.New("webhook url must be http or https")
	}
	if parsed.Host == "" {
		return errors.New("webhook url must include host")
	}
	if parsed.Scheme == "http" {
		host := parsed.Hostname()
		if host != "localhost" && host != "127.0.0.1" {
			return errors.New("http webhook only allowed for localhost")
		}
	}
	return nil
}
