package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/flyer-quote/internal/cache"
	"github.com/noah-isme/flyer-quote/internal/order"
)

// ErrNotFound is returned when a session does not exist or has expired.
var ErrNotFound = errors.New("quote: session not found")

// Session is the persisted part of a quote. Snapshots are always derived
// from Inputs on read.
type Session struct {
	ID        string       `json:"id"`
	Version   uint64       `json:"version"`
	Inputs    order.Inputs `json:"inputs"`
	Valid     bool         `json:"valid"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Store keeps sessions between requests.
type Store interface {
	Get(ctx context.Context, id string) (Session, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
}

// RedisStore keeps sessions as JSON values that expire after TTL of
// inactivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a Redis backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads a session.
func (s *RedisStore) Get(ctx context.Context, id string) (Session, error) {
	var out Session
	data, err := s.client.Get(ctx, cache.KeyQuote(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return out, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("quote: decode session %s: %w", id, err)
	}
	return out, nil
}

// Put stores the session and refreshes its expiry.
func (s *RedisStore) Put(ctx context.Context, sess Session) error {
	if sess.ID == "" {
		return errors.New("quote: session id is required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, cache.KeyQuote(sess.ID), data, s.ttl).Err()
}

// Delete removes the session. Deleting a missing session reports ErrNotFound.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, cache.KeyQuote(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MemoryStore is an in-process Store used when Redis is not configured. The
// zero value keeps sessions forever.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	items map[string]memoryItem
}

type memoryItem struct {
	data    []byte
	expires time.Time
}

func (m *MemoryStore) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// Get loads a session.
func (m *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	item, ok := m.items[id]
	if ok && !item.expires.IsZero() && !m.now().Before(item.expires) {
		delete(m.items, id)
		ok = false
	}
	m.mu.Unlock()

	var out Session
	if !ok {
		return out, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// Stored encoded so callers never share slices with the store.
	if err := json.Unmarshal(item.data, &out); err != nil {
		return out, fmt.Errorf("quote: decode session %s: %w", id, err)
	}
	return out, nil
}

// Put stores the session and refreshes its expiry.
func (m *MemoryStore) Put(_ context.Context, sess Session) error {
	if sess.ID == "" {
		return errors.New("quote: session id is required")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	item := memoryItem{data: data}
	if m.TTL > 0 {
		item.expires = m.now().Add(m.TTL)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.items == nil {
		m.items = map[string]memoryItem{}
	}
	m.items[sess.ID] = item
	return nil
}

// Delete removes the session.
func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.items, id)
	return nil
}
