package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
)

// Memory limits within one process. It serves single-replica deployments
// that run without Redis.
type Memory struct {
	store limiter.Store

	mu        sync.Mutex
	instances map[Rule]*limiter.Limiter
}

// NewMemory returns an in-process limiter.
func NewMemory() *Memory {
	return &Memory{
		store:     memory.NewStoreWithOptions(limiter.StoreOptions{Prefix: "flyer", CleanUpInterval: time.Minute}),
		instances: map[Rule]*limiter.Limiter{},
	}
}

func (m *Memory) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	if rule.disabled() {
		return Decision{Allowed: true, Remaining: rule.Max, Reset: time.Now().Add(rule.Window)}, nil
	}
	// Rules share one store, so the key carries the rule.
	res, err := m.instance(rule).Get(ctx, fmt.Sprintf("%s|%d|%d", key, rule.Max, rule.Window))
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Remaining: int(res.Remaining),
		Reset:     time.Unix(res.Reset, 0),
	}, nil
}

func (m *Memory) instance(rule Rule) *limiter.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.instances[rule]; ok {
		return l
	}
	l := limiter.New(m.store, limiter.Rate{Period: rule.Window, Limit: int64(rule.Max)})
	m.instances[rule] = l
	return l
}
