// Package lock serializes work on a key, across replicas with Redis or within
// one process when no Redis is configured.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotConfigured is returned by a Locker without Redis client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	errNoCallback    = errors.New("lock: callback not provided")
)

// Interface is implemented by Locker and Local.
type Interface interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// unlock deletes the key only while it still carries our token, so a holder
// whose ttl expired cannot release a successor's lock.
var unlock = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker holds quote session locks in Redis so replicas apply commands to a
// session one at a time.
type Locker struct {
	Client *redis.Client
	// RetryBackoff is the first wait between attempts; it doubles up to
	// MaxBackoff.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// OnRelease observes failed releases. The lock then lapses with its ttl.
	OnRelease func(key string, err error)
}

// WithLock runs fn while holding key. The lock is released when fn returns,
// error or not. Waiting ends with ctx.Err() once ctx is done.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.Client == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errNoCallback
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	token := uuid.NewString()
	if err := l.acquire(ctx, key, token, ttl); err != nil {
		return err
	}
	defer l.release(key, token)
	return fn(ctx)
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	wait := l.RetryBackoff
	if wait <= 0 {
		wait = 25 * time.Millisecond
	}
	ceiling := l.MaxBackoff
	if ceiling < wait {
		ceiling = 8 * wait
	}
	for {
		ok, err := l.Client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(2*wait, ceiling)
	}
}

func (l Locker) release(key, token string) {
	// The caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := unlock.Run(ctx, l.Client, []string{key}, token).Err(); err != nil && l.OnRelease != nil {
		l.OnRelease(key, err)
	}
}

// Local serializes work per key inside one process. The zero value is ready
// to use; ttl is ignored.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{}
	refs int
}

// WithLock runs fn once no other holder of key is running.
func (l *Local) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errNoCallback
	}
	e := l.enter(key)
	defer l.forget(key, e)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()
	return fn(ctx)
}

func (l *Local) enter(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks == nil {
		l.locks = map[string]*entry{}
	}
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	return e
}

func (l *Local) forget(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}
