package quote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/flyer-quote/internal/cache"
	"github.com/noah-isme/flyer-quote/internal/distribution"
	"github.com/noah-isme/flyer-quote/internal/order"
)

func sampleSession(t *testing.T) Session {
	t.Helper()
	in, err := order.ReduceAll(order.NewInputs(),
		order.AddUnit{Unit: distribution.Unit{
			ID:            "8001",
			PostalCode:    "8001",
			Place:         "Zürich",
			PriceCategory: "A",
			Households:    distribution.Households{All: 1500, MultiFamily: 1000, SingleFamily: 500},
		}},
		order.SetAudience{Audience: "multi_family"},
	)
	require.NoError(t, err)
	now := time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC)
	return Session{ID: "q-1", Version: 3, Inputs: in, CreatedAt: now, UpdatedAt: now}
}

func TestRedisStoreRoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStore(client, time.Hour)
	ctx := context.Background()
	sess := sampleSession(t)
	require.NoError(t, store.Put(ctx, sess))
	require.True(t, mr.Exists(cache.KeyQuote("q-1")))

	got, err := store.Get(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, sess.Version, got.Version)
	require.Equal(t, distribution.AudienceMultiFamily, got.Inputs.Audience)
	require.Equal(t, 1, got.Inputs.Selection.Len())
	require.True(t, got.Inputs.Touched.Distribution)

	mr.FastForward(2 * time.Hour)
	_, err = store.Get(ctx, "q-1")
	require.True(t, errors.Is(err, ErrNotFound))
	require.True(t, errors.Is(store.Delete(ctx, "q-1"), ErrNotFound))
}

func TestMemoryStoreExpiresAndIsolates(t *testing.T) {
	now := time.Date(2026, time.May, 4, 8, 0, 0, 0, time.UTC)
	store := &MemoryStore{TTL: time.Hour, Now: func() time.Time { return now }}
	ctx := context.Background()
	sess := sampleSession(t)
	require.NoError(t, store.Put(ctx, sess))

	got, err := store.Get(ctx, "q-1")
	require.NoError(t, err)
	got.Inputs.Audience = distribution.AudienceSingleFamily

	again, err := store.Get(ctx, "q-1")
	require.NoError(t, err)
	require.Equal(t, distribution.AudienceMultiFamily, again.Inputs.Audience)

	now = now.Add(time.Hour)
	_, err = store.Get(ctx, "q-1")
	require.True(t, errors.Is(err, ErrNotFound))

	require.Error(t, store.Put(ctx, Session{}))
	require.True(t, errors.Is(store.Delete(ctx, "missing"), ErrNotFound))
}
