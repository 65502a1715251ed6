package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// fakeRedis implements the two commands the cache uses over a map.
type fakeRedis struct {
	redis.Cmdable

	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failGet != nil {
		return redis.NewStringResult("", f.failGet)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func TestIdempotencyCache(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	cache := NewIdempotencyCache(fake, time.Hour)

	got, err := cache.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Nil(t, got, "miss returns nil without error")

	require.NoError(t, cache.Put(ctx, "k1", order.Receipt{OrderID: 12, OrderNumber: "ORD-ABCDE-12345"}))
	assert.Equal(t, time.Hour, fake.ttls[keyPrefix+"k1"])

	got, err = cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(12), got.OrderID)
	assert.Equal(t, "ORD-ABCDE-12345", got.OrderNumber)
}

func TestIdempotencyCache_DefaultTTL(t *testing.T) {
	fake := newFakeRedis()
	cache := NewIdempotencyCache(fake, 0)

	require.NoError(t, cache.Put(context.Background(), "k", order.Receipt{OrderID: 1, OrderNumber: "ORD-AAAAA-BBBBB"}))
	assert.Equal(t, DefaultTTL, fake.ttls[keyPrefix+"k"])
}

func TestIdempotencyCache_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("transport error", func(t *testing.T) {
		fake := newFakeRedis()
		fake.failGet = errors.New("connection refused")
		_, err := NewIdempotencyCache(fake, time.Hour).Get(ctx, "k")
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("corrupt payload", func(t *testing.T) {
		fake := newFakeRedis()
		fake.data[keyPrefix+"k"] = `{"orderId":"x"}`
		_, err := NewIdempotencyCache(fake, time.Hour).Get(ctx, "k")
		assert.Error(t, err)
	})

	t.Run("incomplete payload", func(t *testing.T) {
		fake := newFakeRedis()
		fake.data[keyPrefix+"k"] = `{"orderId":5}`
		_, err := NewIdempotencyCache(fake, time.Hour).Get(ctx, "k")
		assert.Error(t, err)
	})
}
