package remote

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/flyer-quote/internal/obs"
)

// ErrOpenCircuit is returned while the breaker refuses fetches.
var ErrOpenCircuit = errors.New("remote: circuit breaker open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker stops hammering a reference-data origin that keeps failing. It opens
// after Threshold consecutive failures and lets one trial call through after
// Cooldown.
type Breaker struct {
	Target    string
	Threshold int
	Cooldown  time.Duration
	Logger    zerolog.Logger

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	now      func() time.Time
}

// NewBreaker constructs a closed breaker for target.
func NewBreaker(target string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{Target: target, Threshold: threshold, Cooldown: cooldown, Logger: zerolog.Nop(), now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a fetch may proceed.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return true
	}
	if b.clock().Sub(b.openedAt) < b.Cooldown {
		return false
	}
	b.transitionLocked(ctx, StateHalfOpen)
	return true
}

// Report records the outcome of a fetch.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if success {
		b.failures = 0
		b.transitionLocked(ctx, StateClosed)
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.Threshold {
		b.transitionLocked(ctx, StateOpen)
	}
}

func (b *Breaker) transitionLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == StateOpen {
		b.openedAt = b.clock()
	}
	if next == StateClosed {
		b.failures = 0
	}
	if obs.BreakerState != nil {
		obs.BreakerState.WithLabelValues(b.Target).Set(float64(next))
	}
	evt := b.Logger.Info().Str("target", b.Target).Str("from_state", prev.String()).Str("to_state", next.String())
	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		evt = evt.Str("trace_id", span.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

// Backoff returns the exponential delay before retry attempt n (1-based) with
// jitter expressed as a fraction of the delay.
func Backoff(base time.Duration, attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base * time.Duration(1<<uint(attempt-1))
	if jitter <= 0 {
		return d
	}
	spread := float64(d) * jitter
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
