// Package remote fetches reference documents (price table, postal-code
// directory) from files, HTTP origins or a Redis cache in front of either.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/flyer-quote/internal/obs"
)

// ErrEmptyDocument is returned when a source yields no content.
var ErrEmptyDocument = errors.New("remote: empty document")

// Source yields the raw bytes of a reference document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	Name() string
}

// File reads a document from the local filesystem.
type File struct {
	Path string
}

func (f File) Name() string { return "file:" + f.Path }

func (f File) Fetch(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("remote: read %s: %w", f.Path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, f.Path)
	}
	return data, nil
}

// HTTP fetches a document with per-attempt timeout, exponential backoff and a
// circuit breaker.
type HTTP struct {
	URL         string
	Client      *http.Client
	Breaker     *Breaker
	Timeout     time.Duration
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
}

func (h HTTP) Name() string { return h.URL }

func (h HTTP) Fetch(ctx context.Context) ([]byte, error) {
	client := h.Client
	if client == nil {
		client = tracedClient
	}
	breaker := h.Breaker
	if breaker == nil {
		breaker = NewBreaker(h.URL, 3, 30*time.Second)
	}
	attempts := h.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		data, err := h.fetchOnce(ctx, client)
		if err == nil {
			breaker.Report(ctx, true)
			observeFetch(h.Name(), "ok")
			return data, nil
		}
		lastErr = err
		breaker.Report(ctx, false)
		observeFetch(h.Name(), "error")
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(Backoff(h.BaseBackoff, attempt, h.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, fmt.Errorf("remote: fetch %s: %w", h.URL, lastErr)
}

func (h HTTP) fetchOnce(ctx context.Context, client *http.Client) ([]byte, error) {
	callCtx := ctx
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json, application/yaml, text/yaml")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	return data, nil
}

// Cached keeps the last good document in Redis so restarts do not depend on
// the origin being reachable.
type Cached struct {
	Source Source
	Client *redis.Client
	Key    string
	TTL    time.Duration
	Logger zerolog.Logger
}

func (c Cached) Name() string { return "cached:" + c.Source.Name() }

// Fetch prefers a fresh origin copy and falls back to the cached one.
func (c Cached) Fetch(ctx context.Context) ([]byte, error) {
	data, err := c.Source.Fetch(ctx)
	if err == nil {
		if c.Client != nil && c.Key != "" {
			if setErr := c.Client.Set(ctx, c.Key, data, c.TTL).Err(); setErr != nil {
				c.Logger.Warn().Err(setErr).Str("key", c.Key).Msg("cache reference document")
			}
		}
		return data, nil
	}
	if c.Client == nil || c.Key == "" {
		return nil, err
	}
	cached, cacheErr := c.Client.Get(ctx, c.Key).Bytes()
	if cacheErr != nil {
		if errors.Is(cacheErr, redis.Nil) {
			return nil, err
		}
		return nil, errors.Join(err, cacheErr)
	}
	c.Logger.Warn().Err(err).Str("key", c.Key).Msg("origin unavailable, serving cached reference document")
	observeFetch(c.Source.Name(), "cache_fallback")
	return cached, nil
}

// tracedClient propagates trace context to reference origins and records a
// client span per attempt.
var tracedClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

// Options configures sources built by Open.
type Options struct {
	Client      *http.Client
	Timeout     time.Duration
	MaxAttempts int
	Redis       *redis.Client
	CacheKey    string
	CacheTTL    time.Duration
	Logger      zerolog.Logger
}

// Open picks a source for location: http(s) URLs are fetched remotely,
// anything else is read from disk. A Redis client wraps the source in a cache.
func Open(location string, opts Options) Source {
	location = strings.TrimSpace(location)
	var src Source
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		breaker := NewBreaker(location, 3, 30*time.Second)
		breaker.Logger = opts.Logger
		src = HTTP{
			URL:         location,
			Client:      opts.Client,
			Breaker:     breaker,
			Timeout:     opts.Timeout,
			MaxAttempts: opts.MaxAttempts,
			BaseBackoff: 200 * time.Millisecond,
			Jitter:      0.2,
		}
	} else {
		src = File{Path: location}
	}
	if opts.Redis != nil && opts.CacheKey != "" {
		src = Cached{Source: src, Client: opts.Redis, Key: opts.CacheKey, TTL: opts.CacheTTL, Logger: opts.Logger}
	}
	return src
}

func observeFetch(source, result string) {
	if obs.ReferenceFetchTotal != nil {
		obs.ReferenceFetchTotal.WithLabelValues(source, result).Inc()
	}
}
