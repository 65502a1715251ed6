// Package cache holds the Redis-backed look-aside cache of committed
// checkout receipts keyed by idempotency key.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-redis/redis/v8"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

const keyPrefix = "checkout:idem:"

// DefaultTTL is how long a receipt stays cached.
const DefaultTTL = 24 * time.Hour

var _ order.IdempotencyCache = (*IdempotencyCache)(nil)

// IdempotencyCache stores order receipts in Redis.
type IdempotencyCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewIdempotencyCache returns a cache over client. A non-positive ttl means
// DefaultTTL.
func NewIdempotencyCache(client redis.Cmdable, ttl time.Duration) *IdempotencyCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &IdempotencyCache{client: client, ttl: ttl}
}

// NewClient connects to Redis at addr.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Get returns the cached receipt for key, or nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, key string) (*order.Receipt, error) {
	data, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "redis get")
	}

	r, err := decodeReceipt(data)
	if err != nil {
		return nil, errors.Wrapf(err, "decode receipt %q", key)
	}
	return r, nil
}

// Put caches r under key.
func (c *IdempotencyCache) Put(ctx context.Context, key string, r order.Receipt) error {
	if err := c.client.Set(ctx, keyPrefix+key, encodeReceipt(r), c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func encodeReceipt(r order.Receipt) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("orderId")
	e.Int64(r.OrderID)
	e.FieldStart("orderNumber")
	e.Str(r.OrderNumber)
	e.ObjEnd()
	return e.Bytes()
}

func decodeReceipt(data []byte) (*order.Receipt, error) {
	var r order.Receipt
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			r.OrderID, err = d.Int64()
		case "orderNumber":
			r.OrderNumber, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if r.OrderID == 0 || r.OrderNumber == "" {
		return nil, errors.New("incomplete receipt")
	}
	return &r, nil
}
