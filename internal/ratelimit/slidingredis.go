// Package ratelimit throttles quote API clients. Reads and writes are
// counted separately since every write recomputes a snapshot.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Rule is the allowance within a sliding window.
type Rule struct {
	Window time.Duration
	Max    int
}

func (r Rule) disabled() bool { return r.Max <= 0 || r.Window <= 0 }

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// SlidingWindow counts events per key in a Redis sorted set so the limit
// holds across replicas. Rejected events still count towards the window.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l SlidingWindow) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || rule.disabled() {
		return Decision{Allowed: true, Remaining: rule.Max, Reset: now.Add(rule.Window)}, nil
	}

	redisKey := l.Prefix + key
	cutoff := strconv.FormatInt(now.Add(-rule.Window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Reset: now.Add(rule.Window)}, err
	}

	// The window frees a slot when its oldest entry ages out.
	reset := now.Add(rule.Window)
	if first := oldest.Val(); len(first) == 1 {
		reset = time.Unix(0, int64(first[0].Score)).Add(rule.Window)
	}
	current := int(count.Val())
	return Decision{
		Allowed:   current <= rule.Max,
		Remaining: max(rule.Max-current, 0),
		Reset:     reset,
	}, nil
}
